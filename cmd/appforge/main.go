// Command appforge generates single-page apps from task briefs and
// publishes them to GitHub.
package main

func main() {
	Execute()
}
