package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/abdul-hamid-achik/hitcall/packages/core/runner"
	"github.com/abdul-hamid-achik/hitcall/packages/http"
	"github.com/fatih/color"
	"github.com/tidwall/pretty"
)

// NotFoundMessage is printed when no entry matches the selected tag or index.
const NotFoundMessage = "Item not found"

// maskValue hides all but the last few characters of a credential.
func maskValue(v string) string {
	const visible = 4
	scheme, token, ok := strings.Cut(v, " ")
	if !ok {
		scheme, token = "", v
	}
	masked := strings.Repeat("*", 8)
	if len(token) > visible*2 {
		masked += token[len(token)-visible:]
	}
	if scheme != "" {
		return scheme + " " + masked
	}
	return masked
}

func isAuthorization(header string) bool {
	return strings.EqualFold(header, "Authorization")
}

func ansi(attr color.Attribute) [2]string {
	return [2]string{fmt.Sprintf("\x1b[%dm", attr), fmt.Sprintf("\x1b[%dm", color.Reset)}
}

// bodyStyle colours keys blue, strings yellow, numbers green, booleans
// magenta and null red.
func bodyStyle() *pretty.Style {
	style := *pretty.TerminalStyle
	style.Key = ansi(color.FgBlue)
	style.String = ansi(color.FgYellow)
	style.Number = ansi(color.FgGreen)
	style.True = ansi(color.FgMagenta)
	style.False = ansi(color.FgMagenta)
	style.Null = ansi(color.FgRed)
	return &style
}

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

func (f *ConsoleFormatter) colored() bool {
	return !f.noColor && !color.NoColor
}

func (f *ConsoleFormatter) FormatResult(result *runner.Result) {
	cyan := color.New(color.FgCyan).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()

	if f.verbose && result.Request != nil {
		f.FormatRequest(result.Request)
	}

	if result.Response != nil {
		status := result.Response.Status
		if status == "" {
			status = fmt.Sprintf("%d", result.Response.StatusCode)
		}
		fmt.Fprintf(f.writer, "%s %s %s\n",
			statusColor(result.Response).Sprint(status),
			result.Tag,
			cyan(fmt.Sprintf("(%dms)", result.Duration.Milliseconds())))
	}

	f.writeBody(result.Body)

	for _, path := range result.Saved {
		fmt.Fprintf(f.writer, "%s %s\n", green("Saved:"), path)
	}
}

// FormatRequest prints the request line, headers and body. Authorization is masked.
func (f *ConsoleFormatter) FormatRequest(req *http.Request) {
	bold := color.New(color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	fmt.Fprintf(f.writer, "%s %s\n", bold(req.Method), req.URL)

	keys := make([]string, 0, len(req.Headers))
	for k := range req.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := req.Headers[k]
		if isAuthorization(k) {
			v = maskValue(v)
		}
		fmt.Fprintf(f.writer, "%s %s\n", faint(k+":"), v)
	}

	if req.Body != "" {
		fmt.Fprintln(f.writer)
		fmt.Fprintln(f.writer, strings.TrimRight(req.Body, "\n"))
	}
	fmt.Fprintln(f.writer)
}

func (f *ConsoleFormatter) writeBody(body []byte) {
	if len(body) == 0 {
		return
	}
	out := pretty.Pretty(body)
	if f.colored() {
		out = pretty.Color(out, bodyStyle())
	}
	_, _ = f.writer.Write(out)
}

func statusColor(resp *http.Response) *color.Color {
	switch {
	case resp.IsSuccess():
		return color.New(color.FgGreen, color.Bold)
	case resp.IsRedirect():
		return color.New(color.FgCyan, color.Bold)
	case resp.IsClientError():
		return color.New(color.FgYellow, color.Bold)
	case resp.IsServerError():
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.Bold)
	}
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

// FormatNotFound prints the message shown when no entry matches the selector.
func (f *ConsoleFormatter) FormatNotFound() {
	fmt.Fprintln(f.writer, NotFoundMessage)
}
