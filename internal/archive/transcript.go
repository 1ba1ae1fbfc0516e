package archive

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuuyuu661/seiri/internal/record"
)

const timestampLayout = "2006-01-02 15:04:05"

// RenderTranscript flattens records into a plain-text log: one line per
// record, attachments and flags indented beneath it.
func RenderTranscript(records []record.Record) string {
	var b strings.Builder
	for _, r := range records {
		fmt.Fprintf(&b, "[%s] %s(%s): %s\n",
			r.Timestamp.UTC().Format(timestampLayout), r.AuthorName, r.AuthorID, r.Content)
		for _, url := range r.Attachments {
			fmt.Fprintf(&b, "    %s\n", url)
		}
		if r.Edited {
			b.WriteString("    (edited)\n")
		}
		if r.Deleted {
			b.WriteString("    (deleted)\n")
		}
	}
	return b.String()
}

// SplitChunks cuts data into pieces no larger than max, preferring line
// boundaries. A single line longer than max is hard-split at the byte
// limit. Concatenating the chunks reproduces data exactly.
func SplitChunks(data []byte, max int) [][]byte {
	if len(data) == 0 || max <= 0 {
		return nil
	}
	var chunks [][]byte
	for len(data) > 0 {
		if len(data) <= max {
			chunks = append(chunks, data)
			break
		}
		cut := bytes.LastIndexByte(data[:max], '\n')
		if cut < 0 {
			// One oversized line; fall back to a hard byte split.
			chunks = append(chunks, data[:max])
			data = data[max:]
			continue
		}
		chunks = append(chunks, data[:cut+1])
		data = data[cut+1:]
	}
	return chunks
}
