package domain

import "strings"

// DisplayNames translates column keys into human-readable labels.
type DisplayNames map[string]string

// Label returns the configured label for key. Unknown keys fall back to
// the key with underscores turned into spaces.
func (d DisplayNames) Label(key string) string {
	if label, ok := d[key]; ok && label != "" {
		return label
	}
	if label, ok := d[strings.ToLower(key)]; ok && label != "" {
		return label
	}
	return strings.ReplaceAll(key, "_", " ")
}

// Labels maps every key to its label.
func (d DisplayNames) Labels(keys []string) map[string]string {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k] = d.Label(k)
	}
	return out
}
