package util

import (
	"errors"
	"os/exec"
	"runtime"
)

// browserCommands 按优先级返回打开 URL 的候选命令
func browserCommands(goos, url string) [][]string {
	switch goos {
	case "windows":
		// rundll32 兼容 Windows 7，explorer 作为备选
		return [][]string{
			{"rundll32", "url.dll,FileProtocolHandler", url},
			{"explorer", url},
		}
	case "darwin":
		return [][]string{{"open", url}}
	default:
		cmds := [][]string{{"xdg-open", url}}
		for _, b := range []string{"sensible-browser", "google-chrome", "firefox", "chromium-browser"} {
			cmds = append(cmds, []string{b, url})
		}
		return cmds
	}
}

// OpenURL 用系统默认浏览器打开 url，依次尝试候选命令
func OpenURL(url string) error {
	var errs []error
	for _, args := range browserCommands(runtime.GOOS, url) {
		err := exec.Command(args[0], args[1:]...).Start()
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
