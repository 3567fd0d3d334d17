package models

// SSHResult holds the result of an SSH command.
type SSHResult struct {
	CommandRun bool
	Output     []byte
	Error      error
}
