package agentclient

import (
	"context"

	"github.com/shirou/gopsutil/v4/process"
)

// estimateRSSMB returns the resident set size, in megabytes, of pid and
// every descendant process it has spawned. Used for admission and
// pressure-recovery decisions, which care about the subprocess tree as
// a whole rather than the direct child alone (the CLI may fork helper
// processes for tool execution).
func estimateRSSMB(ctx context.Context, pid int32) float64 {
	total, err := rssTreeBytes(ctx, pid)
	if err != nil {
		return 0
	}
	return float64(total) / (1024 * 1024)
}

func rssTreeBytes(ctx context.Context, pid int32) (uint64, error) {
	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return 0, err
	}

	var total uint64
	if mem, err := proc.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		total += mem.RSS
	}

	children, err := proc.ChildrenWithContext(ctx)
	if err != nil {
		// No children, or the tree already exited; the direct process's
		// own RSS is still a useful figure.
		return total, nil
	}
	for _, child := range children {
		childTotal, err := rssTreeBytes(ctx, child.Pid)
		if err == nil {
			total += childTotal
		}
	}
	return total, nil
}
