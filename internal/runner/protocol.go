package runner

import (
	"fmt"
	"os/exec"
	"strings"
)

// CaseEnv is the environment variable set by EnvProtocol.
const CaseEnv = "PFEM_CASE"

// Protocol hands the case basename to a program. Callers of Runner never
// change when the protocol does.
type Protocol interface {
	Name() string
	Prepare(cmd *exec.Cmd, basename string)
}

// StdinProtocol writes the basename and a newline to standard input.
type StdinProtocol struct{}

func (StdinProtocol) Name() string { return "stdin" }

func (StdinProtocol) Prepare(cmd *exec.Cmd, basename string) {
	cmd.Stdin = strings.NewReader(basename + "\n")
}

// ArgProtocol passes case=<basename> as the only argument.
type ArgProtocol struct{}

func (ArgProtocol) Name() string { return "arg" }

func (ArgProtocol) Prepare(cmd *exec.Cmd, basename string) {
	cmd.Args = append(cmd.Args, "case="+basename)
}

// EnvProtocol exports the basename as PFEM_CASE.
type EnvProtocol struct{}

func (EnvProtocol) Name() string { return "env" }

func (EnvProtocol) Prepare(cmd *exec.Cmd, basename string) {
	cmd.Env = append(cmd.Env, CaseEnv+"="+basename)
}

// ProtocolByName returns the protocol registered under name.
func ProtocolByName(name string) (Protocol, error) {
	switch name {
	case "", "stdin":
		return StdinProtocol{}, nil
	case "arg":
		return ArgProtocol{}, nil
	case "env":
		return EnvProtocol{}, nil
	default:
		return nil, fmt.Errorf("unknown run protocol %q", name)
	}
}
