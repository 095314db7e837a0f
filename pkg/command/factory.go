package command

type builder func(Instruction) []Command

// Factory maps action tags to command queues.
type Factory struct {
	builders map[string]builder
}

func NewFactory() *Factory {
	return &Factory{builders: map[string]builder{
		ActionInit: func(in Instruction) []Command {
			return []Command{&Init{
				Path:          in.ContainerPath,
				ContainerName: in.ContainerName,
				Image:         in.Image,
				Scaffold:      in.Scaffold,
			}}
		},
		ActionStart:  single(func(Instruction) Command { return &Start{} }),
		ActionStop:   single(func(Instruction) Command { return &Stop{} }),
		ActionDelete: single(func(Instruction) Command { return &Delete{} }),
		ActionLaunch: single(func(Instruction) Command { return &Launch{} }),
		ActionGenSSHKey: single(func(in Instruction) Command {
			return &GenSSHKey{User: in.SSHUser}
		}),
		ActionSSH:  single(func(in Instruction) Command { return &SSH{User: in.SSHUser} }),
		ActionBash: single(func(Instruction) Command { return &Bash{} }),
		ActionToImage: func(Instruction) []Command {
			return []Command{&Stop{}, &Publish{}, &Start{}}
		},
		ActionAddPortforward: single(func(in Instruction) Command {
			return &AddPortforward{Spec: in.Portforward}
		}),
		ActionRemovePortfwd: single(func(in Instruction) Command {
			return &RemovePortforward{Spec: in.Portforward}
		}),
		ActionCheckPortfwd: single(func(Instruction) Command { return &CheckPortforward{} }),
		ActionInfo:         single(func(Instruction) Command { return &Info{} }),
		ActionTakeSnapshot: single(func(Instruction) Command { return &TakeSnapshot{} }),
		ActionRestoreSnap: single(func(in Instruction) Command {
			return &RestoreSnapshot{Snapshot: in.SnapName}
		}),
		ActionDeleteSnap: single(func(in Instruction) Command {
			return &DeleteSnapshot{Snapshot: in.SnapName}
		}),
		ActionExpandDisk: single(func(in Instruction) Command {
			return &ExpandDisk{Size: in.ExpandSize}
		}),
	}}
}

func single(build func(Instruction) Command) builder {
	return func(in Instruction) []Command {
		return []Command{build(in)}
	}
}

// Create builds the queue for in. An unknown action yields an empty queue.
func (f *Factory) Create(in Instruction) *Invoker {
	inv := NewInvoker(in.ContainerPath)
	if build, ok := f.builders[in.Action]; ok {
		for _, cmd := range build(in) {
			inv.Add(cmd)
		}
	}
	return inv
}
