package commands

import (
	"encoding/json"
	"fmt"
	"os"
)

// emit prints v as indented JSON when --json is set, otherwise text.
func emit(v any, text string) error {
	if !jsonOut {
		fmt.Println(text)
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
