package publish

import (
	"fmt"
	"strings"
)

// RepoPrefix starts every generated repository name.
const RepoPrefix = "llm-project"

// maxRepoName is GitHub's limit on repository name length.
const maxRepoName = 100

// RepoName derives the repository name for a task and nonce.
// The result is lowercase and limited to [a-z0-9._-]; spaces become hyphens.
// GitHub names are case-insensitive, so nonces differing only in case map
// to the same repository.
func RepoName(task, nonce string) string {
	n := slug(nonce)
	t := slug(task)

	budget := maxRepoName - len(RepoPrefix) - len(n) - 2
	if budget < 1 {
		budget = 1
	}
	if len(t) > budget {
		t = strings.TrimRight(t[:budget], "-")
	}

	switch {
	case t == "" && n == "":
		return RepoPrefix
	case t == "":
		return fmt.Sprintf("%s-%s", RepoPrefix, n)
	case n == "":
		return fmt.Sprintf("%s-%s", RepoPrefix, t)
	}
	return fmt.Sprintf("%s-%s-%s", RepoPrefix, t, n)
}

// RepoURL is the web URL of a repository.
func RepoURL(owner, name string) string {
	return fmt.Sprintf("https://github.com/%s/%s", owner, name)
}

// PagesURL is the conventional GitHub Pages URL of a repository.
func PagesURL(owner, name string) string {
	return fmt.Sprintf("https://%s.github.io/%s", strings.ToLower(owner), name)
}

func slug(s string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
