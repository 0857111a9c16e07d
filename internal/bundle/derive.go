package bundle

import "regexp"

var caseSuffixRe = regexp.MustCompile(`_\d+$`)

// DeriveProgram maps a case basename to the program it exercises. A
// basename that names a program is used as is (p104 -> p104); otherwise a
// trailing _<digits> is stripped (p51_3 -> p51). ok is false when neither
// names an existing program.
func DeriveProgram(basename string, exists func(program string) bool) (program string, ok bool) {
	if exists(basename) {
		return basename, true
	}
	stripped := caseSuffixRe.ReplaceAllString(basename, "")
	if stripped != basename && exists(stripped) {
		return stripped, true
	}
	return "", false
}
