package cmd

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/avpd/avpd/color"
	"github.com/avpd/avpd/style"
	"github.com/charmbracelet/lipgloss"
)

// dependency couples a binary name with what breaks without it.
type dependency struct {
	binary  string
	purpose string
}

var dependencies = []dependency{
	{"mpv", "video playback on the local display"},
	{"ffmpeg", "thumbnail extraction and the HLS preview"},
	{"rclone", "cloud library synchronization"},
}

// CheckDependencies reports missing external tools. None of them is
// fatal: the control server stays up and the affected feature degrades.
func CheckDependencies() {
	for _, dep := range dependencies {
		if _, err := exec.LookPath(dep.binary); err != nil {
			printMissingDependencyWarning(dep)
		}
	}
}

func printMissingDependencyWarning(dep dependency) {
	var installCmd string
	switch runtime.GOOS {
	case "darwin":
		installCmd = "brew install " + dep.binary
	case "linux":
		installCmd = "sudo apt install " + dep.binary
	case "windows":
		installCmd = "scoop install " + dep.binary
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color.Yellow).
		Padding(1, 2).
		Margin(1, 0)

	title := style.New().Bold(true).Foreground(color.Yellow).Render("Warning: Missing Dependency")
	body := style.New().Render(fmt.Sprintf("'%s' was not found in your PATH; %s will not work.", dep.binary, dep.purpose))

	suggestion := ""
	if installCmd != "" {
		suggestion = fmt.Sprintf("\n\nTo install it, try running:\n  %s", style.New().Bold(true).Render(installCmd))
	}

	fmt.Println(box.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			title,
			"\n",
			body,
			suggestion,
		),
	))
}
