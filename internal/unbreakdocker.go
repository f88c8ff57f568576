package internal

import (
	"os"
	"os/exec"
)

// UnbreakDocker attaches the current container to docker's default bridge
// network so tests running inside a dev container can reach the containers
// that testcontainers starts next to it. Outside a container it does nothing.
//
// XXX(Xe): This is bad code. Do not do this.
func UnbreakDocker() {
	if _, err := os.Stat("/.dockerenv"); err != nil {
		return
	}

	if hostname, err := os.Hostname(); err == nil {
		exec.Command("docker", "network", "connect", "bridge", hostname).Run()
	}
}
