package model

import (
	"bufio"
	"os"
	"os/exec"
	"strings"
)

// DetectPython returns the interpreter named in the shebang of the Coqui
// entry-point script exe (e.g. the virtualenv's python), or "python3" when it
// cannot be determined.
func DetectPython(exe string) string {
	bin, err := exec.LookPath(exe)
	if err != nil {
		return "python3"
	}
	fh, err := os.Open(bin)
	if err != nil {
		return "python3"
	}
	defer fh.Close()

	s := bufio.NewScanner(fh)
	if !s.Scan() {
		return "python3"
	}
	line := strings.TrimSpace(s.Text())
	if !strings.HasPrefix(line, "#!") {
		return "python3"
	}
	fields := strings.Fields(strings.TrimPrefix(line, "#!"))
	if len(fields) == 0 {
		return "python3"
	}
	interpreter := fields[0]
	// "#!/usr/bin/env python3" names the real interpreter second.
	if strings.HasSuffix(interpreter, "/env") && len(fields) > 1 {
		return fields[1]
	}
	if _, err := os.Stat(interpreter); err != nil {
		return "python3"
	}
	return interpreter
}
