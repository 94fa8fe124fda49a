package store

import (
	"strings"

	"github.com/tidwall/gjson"
)

// FileMapping routes the value at JSONPath into Filename, relative to the
// target directory. Filename may contain subdirectories.
type FileMapping struct {
	Filename string
	JSONPath string
}

// ParseMappings parses a structure string. A JSON object such as
// {"a.txt": "x.y"} is tried first; anything else is read as a comma
// separated list of filename:path pairs. Mappings keep their source order
// and entries that do not fit either form are skipped.
func ParseMappings(structure string) []FileMapping {
	if gjson.Valid(structure) {
		if obj := gjson.Parse(structure); obj.IsObject() {
			var mappings []FileMapping
			obj.ForEach(func(k, v gjson.Result) bool {
				if v.Type == gjson.String {
					mappings = append(mappings, FileMapping{Filename: k.Str, JSONPath: v.Str})
				}
				return true
			})
			return mappings
		}
	}

	var mappings []FileMapping
	for _, pair := range strings.Split(structure, ",") {
		filename, jsonPath, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		mappings = append(mappings, FileMapping{
			Filename: strings.TrimSpace(filename),
			JSONPath: strings.TrimSpace(jsonPath),
		})
	}
	return mappings
}
