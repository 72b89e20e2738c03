package container

import (
	"os"
	"strings"
)

// IsContainerised reports whether the current process is likely running
// inside a container, by checking for common signals: /.dockerenv,
// container-related cgroup entries, and Kubernetes environment variables.
// Dispatch uses this to pick sane logging defaults without requiring an
// operator to set DISPATCH_FILE_OUTPUT explicitly in every deployment.
func IsContainerised() bool {
	return hasDockerEnvFile() || isInContainerCGroup() || isInKubernetesPod()
}

// hasDockerEnvFile checks if the /.dockerenv file exists, which _should be_ present in most Docker containers.
func hasDockerEnvFile() bool {
	_, err := os.Stat("/.dockerenv")
	return err == nil
}

// isInContainerCGroup checks for container-related strings in /proc/1/cgroup (e.g. docker, containerd, kubepods).
func isInContainerCGroup() bool {
	data, err := os.ReadFile("/proc/1/cgroup")
	if err != nil {
		return false
	}
	content := string(data)
	return strings.Contains(content, "docker") ||
		strings.Contains(content, "containerd") ||
		strings.Contains(content, "kubepods")
}

// isInKubernetesPod checks for the environment variable every pod gets via
// the kubernetes Service named "kubernetes" in its own namespace.
func isInKubernetesPod() bool {
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}
