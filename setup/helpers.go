package setup

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// installHint suggests how to get a missing interpreter onto PATH.
func installHint(interpreter string) string {
	pkg := filepath.Base(interpreter)
	if strings.HasPrefix(pkg, "python") {
		pkg = "python3"
	}
	pm, args := detectPackageManager(pkg)
	if pm == "" {
		return fmt.Sprintf("install %s or set capture.interpreter", pkg)
	}
	return fmt.Sprintf("run: %s %s", pm, strings.Join(args, " "))
}

func detectPackageManager(pkgName string) (string, []string) {
	if _, err := exec.LookPath("apt-get"); err == nil {
		return "sudo", []string{"apt-get", "install", "-y", pkgName}
	}
	if _, err := exec.LookPath("dnf"); err == nil {
		return "sudo", []string{"dnf", "install", "-y", pkgName}
	}
	if _, err := exec.LookPath("pacman"); err == nil {
		return "sudo", []string{"pacman", "-S", "--noconfirm", pkgName}
	}
	if _, err := exec.LookPath("zypper"); err == nil {
		return "sudo", []string{"zypper", "install", "-y", pkgName}
	}
	if _, err := exec.LookPath("opkg"); err == nil {
		return "opkg", []string{"install", pkgName}
	}
	return "", nil
}
