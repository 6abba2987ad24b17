// Package format builds the bulletin-board style text block rendered from a
// media record. The block is plain BBCode-ish text meant to be pasted into a
// forum post, so the builder only deals in lines and labels.
package format

import "strings"

type Builder struct {
	sb strings.Builder
}

// Img appends a [img] tag line when the URL is non-empty.
func (b *Builder) Img(url string) {
	if strings.TrimSpace(url) == "" {
		return
	}
	b.sb.WriteString("[img]")
	b.sb.WriteString(url)
	b.sb.WriteString("[/img]\n\n")
}

// Line appends "◎<label>　<v1> / <v2> / ..." and skips entirely when every
// value is empty, so optional fields vanish instead of rendering blank.
func (b *Builder) Line(label string, values ...string) {
	joined := Join(values)
	if joined == "" {
		return
	}
	b.sb.WriteString("◎")
	b.sb.WriteString(label)
	b.sb.WriteString("　")
	b.sb.WriteString(joined)
	b.sb.WriteString("\n")
}

// Block appends a labeled multi-line section, e.g. the synopsis.
func (b *Builder) Block(label, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	b.sb.WriteString("◎")
	b.sb.WriteString(label)
	b.sb.WriteString("\n")
	for _, line := range strings.Split(text, "\n") {
		b.sb.WriteString("　　")
		b.sb.WriteString(strings.TrimSpace(line))
		b.sb.WriteString("\n")
	}
}

// Raw appends text verbatim.
func (b *Builder) Raw(text string) {
	b.sb.WriteString(text)
}

func (b *Builder) String() string {
	return strings.TrimRight(b.sb.String(), "\n")
}

// Join renders a value list as a " / " separated string, dropping empties.
func Join(values []string) string {
	kept := make([]string, 0, len(values))
	for _, value := range values {
		if v := strings.TrimSpace(value); v != "" {
			kept = append(kept, v)
		}
	}
	return strings.Join(kept, " / ")
}
