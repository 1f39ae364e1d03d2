package imagespec

import (
	"fmt"
	"strings"
)

// Dockerfile renders the recipe as a Dockerfile.
func (r Recipe) Dockerfile() (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "FROM %s\n\n", r.Base)
	for _, s := range r.Steps {
		switch s.Kind {
		case StepApt:
			fmt.Fprintf(&b, "RUN apt-get update && \\\n    apt-get install -y --no-install-recommends %s && \\\n    rm -rf /var/lib/apt/lists/*\n",
				quoteAll(s.Packages))
		case StepPip:
			line := "RUN pip install --no-cache-dir " + quoteAll(s.Packages)
			if s.IndexURL != "" {
				line += " --extra-index-url " + shellQuote(s.IndexURL)
			}
			b.WriteString(line + "\n")
		case StepRun:
			for _, c := range s.Commands {
				fmt.Fprintf(&b, "RUN %s\n", c)
			}
		case StepGitClone:
			line := fmt.Sprintf("RUN git clone %s %s", shellQuote(s.Repo), shellQuote(s.Dest))
			if s.Requirements != "" {
				line += fmt.Sprintf(" && \\\n    cd %s && pip install --no-cache-dir -r %s", shellQuote(s.Dest), shellQuote(s.Requirements))
			}
			b.WriteString(line + "\n")
		case StepEnv:
			fmt.Fprintf(&b, "ENV %s=%s\n", s.Key, shellQuote(s.Value))
		case StepCopy:
			fmt.Fprintf(&b, "COPY %s %s\n", s.Src, s.Dest)
		case StepPrepare:
			fmt.Fprintf(&b, "RUN gpuserve prepare --service %s\n", shellQuote(s.Service))
		}
	}
	return b.String(), nil
}

func quoteAll(in []string) string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = shellQuote(s)
	}
	return strings.Join(out, " ")
}

// shellQuote single-quotes s unless it only holds characters the shell
// treats literally.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.ContainsRune("-_./:=+@,%", c):
		default:
			safe = false
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
