package gitlog

import "strings"

// ExtractCoAuthors returns one signature per "Co-authored-by: Name <email>"
// trailer in message, in order of appearance. Trailing whitespace is trimmed
// from names. A message without trailers yields an empty slice.
func ExtractCoAuthors(message string) []Signature {
	matches := coAuthorRe.FindAllStringSubmatch(message, -1)
	coauthors := make([]Signature, 0, len(matches))

	nameIdx := coAuthorRe.SubexpIndex("name")
	emailIdx := coAuthorRe.SubexpIndex("email")

	for _, match := range matches {
		coauthors = append(coauthors, Signature{
			Name:  strings.TrimRight(match[nameIdx], " \t\r"),
			Email: strings.TrimSpace(match[emailIdx]),
		})
	}

	return coauthors
}

// uniqueSignatures drops repeated signatures, keeping the first occurrence.
func uniqueSignatures(sigs []Signature) []Signature {
	if len(sigs) < 2 {
		return sigs
	}

	seen := make(map[Signature]bool, len(sigs))
	unique := sigs[:0:0]

	for _, sig := range sigs {
		if seen[sig] {
			continue
		}

		seen[sig] = true

		unique = append(unique, sig)
	}

	return unique
}
