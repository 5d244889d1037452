package generate

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/appforge/pkg/models"
)

// SystemPrompt frames every generation request.
const SystemPrompt = `You are a front-end developer who ships small, dependency-free web apps.
You answer with source code only.`

// BuildPrompt returns the user prompt for a brief. The model is asked for a
// single self-contained index.html; README and LICENSE are written locally.
func BuildPrompt(brief string) string {
	var b strings.Builder
	b.WriteString("Generate a minimal HTML/CSS/JS app for this brief:\n")
	b.WriteString(strings.TrimSpace(brief))
	b.WriteString(`

Requirements:
- Return ONE complete index.html file with all CSS and JavaScript inline.
- Load nothing except from public CDNs; the page is served from static hosting.
- Do not include README or license text.
- Respond with the file content only, no explanation.
`)
	return b.String()
}

// Readme renders the README.md for a task.
func Readme(req models.TaskRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", req.Task)
	b.WriteString("Generated project.\n\n")
	b.WriteString("## Brief\n\n")
	b.WriteString(strings.TrimSpace(req.Brief))
	b.WriteString("\n\n## Usage\n\n")
	b.WriteString("Open `index.html` in a browser, or visit the GitHub Pages site for this repository.\n\n")
	fmt.Fprintf(&b, "## License\n\nMIT. See [LICENSE](LICENSE).\n\n---\nRound %d, nonce `%s`.\n", req.Round, req.Nonce)
	return b.String()
}

// License renders the MIT license text.
func License(year int, holder string) string {
	return fmt.Sprintf(`MIT License

Copyright (c) %d %s

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
`, year, holder)
}
