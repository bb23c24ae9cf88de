package respond

import (
	"encoding/json"
	"fmt"
	"io"
)

func JSON(w io.Writer, data interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// Text writes one line of normal output.
func Text(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, format+"\n", args...)
}

// Error writes a one-line error message.
func Error(w io.Writer, message string) {
	fmt.Fprintf(w, "Error: %s\n", message)
}
