package export

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// exportDOCX converts HTML to a Word document using pandoc.
func exportDOCX(html string, title string) (*Result, error) {
	if _, err := exec.LookPath("pandoc"); err != nil {
		return nil, fmt.Errorf("%w: pandoc not installed", ErrDOCXDependencyMissing)
	}

	cmd := exec.Command("pandoc",
		"-f", "html",
		"-t", "docx",
		"--standalone",
		"-o", "-",
	)
	cmd.Stdin = strings.NewReader(html)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return nil, fmt.Errorf("pandoc conversion failed: %s: %w", detail, err)
		}
		return nil, fmt.Errorf("pandoc conversion failed: %w", err)
	}

	return &Result{
		Data:     stdout.Bytes(),
		Filename: sanitizeFilename(title) + ".docx",
		MimeType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	}, nil
}
