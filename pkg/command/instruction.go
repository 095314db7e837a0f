package command

import (
	"fmt"
	"regexp"
)

// Action tags understood by the factory.
const (
	ActionInit           = "init"
	ActionStart          = "start"
	ActionStop           = "stop"
	ActionDelete         = "delete"
	ActionLaunch         = "launch"
	ActionGenSSHKey      = "gen_sshkey"
	ActionSSH            = "ssh"
	ActionBash           = "bash"
	ActionToImage        = "toimg"
	ActionAddPortforward = "add_pfd"
	ActionRemovePortfwd  = "remove_pfd"
	ActionCheckPortfwd   = "check_pfd"
	ActionInfo           = "info"
	ActionTakeSnapshot   = "take_snap"
	ActionRestoreSnap    = "restore_snap"
	ActionDeleteSnap     = "del_snap"
	ActionExpandDisk     = "expand_disk"
)

var expandSizePattern = regexp.MustCompile(`^[1-9][0-9]*[KMGTP]?$`)

// Instruction is a validated request: an action tag, the container directory
// and whichever parameters the action reads.
type Instruction struct {
	Action        string
	ContainerPath string
	ContainerName string
	Image         string
	Portforward   string
	SnapName      string
	ExpandSize    string
	SSHUser       string
	// Scaffold asks init to write a starter setup script.
	Scaffold bool
}

// Validate checks the parameters required by the instruction's action.
// Unknown actions are not rejected here; the factory turns them into an
// empty queue.
func (i Instruction) Validate() error {
	if i.ContainerPath == "" {
		return fmt.Errorf("container path is required")
	}
	switch i.Action {
	case ActionInit:
		if i.Image == "" {
			return fmt.Errorf("%s requires an image", i.Action)
		}
	case ActionAddPortforward, ActionRemovePortfwd:
		if i.Portforward == "" {
			return fmt.Errorf("%s requires a port-forward rule", i.Action)
		}
	case ActionRestoreSnap, ActionDeleteSnap:
		if i.SnapName == "" {
			return fmt.Errorf("%s requires a snapshot name", i.Action)
		}
	case ActionExpandDisk:
		if !expandSizePattern.MatchString(i.ExpandSize) {
			return fmt.Errorf("%s requires a size like 10G, got %q", i.Action, i.ExpandSize)
		}
	}
	return nil
}
