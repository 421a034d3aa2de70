// Package safety decides whether a block device hosts the running operating
// system. It is the unconditional gate in front of every test start: the
// guard cross-checks several independent signals and treats any hit, or any
// inability to read the signals at all, as protected.
package safety

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/compudrive/drivebench/internal/core"
	"github.com/compudrive/drivebench/internal/tools"
)

// GuardOptions configures the guard. Zero values use the live system paths.
type GuardOptions struct {
	// MountsPath is the mount table to read; defaults to /proc/mounts.
	MountsPath string
	// FstabPath is the static filesystem table; defaults to /etc/fstab.
	FstabPath string
	// Runner executes lsblk; defaults to a real ExecRunner.
	Runner tools.Runner
	// Resolve maps /dev/disk/by-* style paths to real device nodes;
	// defaults to filepath.EvalSymlinks.
	Resolve func(string) (string, error)
	Logger  *slog.Logger
}

// Guard implements core.SafetyGuard.
type Guard struct {
	mountsPath string
	fstabPath  string
	runner     tools.Runner
	resolve    func(string) (string, error)
	logger     *slog.Logger
}

var _ core.SafetyGuard = (*Guard)(nil)

// NewGuard constructs a guard.
func NewGuard(opts GuardOptions) *Guard {
	g := &Guard{
		mountsPath: opts.MountsPath,
		fstabPath:  opts.FstabPath,
		runner:     opts.Runner,
		resolve:    opts.Resolve,
		logger:     opts.Logger,
	}
	if g.mountsPath == "" {
		g.mountsPath = "/proc/mounts"
	}
	if g.fstabPath == "" {
		g.fstabPath = "/etc/fstab"
	}
	if g.runner == nil {
		g.runner = &tools.ExecRunner{}
	}
	if g.resolve == nil {
		g.resolve = filepath.EvalSymlinks
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

// IsProtected reports whether devicePath hosts the running OS. The decision
// is a conservative union over all signals: any hit protects the device,
// and an unreadable or unrecognizable state protects it too.
func (g *Guard) IsProtected(ctx context.Context, devicePath string) bool {
	name, ok := g.normalize(devicePath)
	if !ok {
		g.logger.WarnContext(ctx, "cannot normalize device, treating as protected", "device", devicePath)
		return true
	}

	protected := g.protectedDrives(ctx)
	if len(protected) == 0 {
		g.logger.WarnContext(ctx, "no OS drive signal readable, treating all devices as protected",
			"device", devicePath)
		return true
	}

	_, hit := protected[name]
	return hit
}

// SystemDrives returns the base device names every signal currently marks as
// hosting the OS. The scanner uses this to annotate its results; the guard
// itself is still consulted at start time.
func (g *Guard) SystemDrives(ctx context.Context) []string {
	set := g.protectedDrives(ctx)
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	return out
}

// protectedDrives gathers the union of all signals. Signals that cannot be
// read contribute nothing; the caller handles the all-empty case.
func (g *Guard) protectedDrives(ctx context.Context) map[string]struct{} {
	set := make(map[string]struct{})
	add := func(device string) {
		if device == "" {
			return
		}
		if name, ok := g.normalize(device); ok {
			set[name] = struct{}{}
		}
	}

	for _, dev := range g.rootSourcesFromTable(g.mountsPath, false) {
		add(dev)
	}
	for _, dev := range g.rootSourcesFromTable(g.fstabPath, true) {
		add(dev)
	}
	for _, dev := range g.mountSourcesFromLsblk(ctx) {
		add(dev)
	}
	return set
}

// rootSourcesFromTable extracts the source device of the / and /boot entries
// from an fstab-format table.
func (g *Guard) rootSourcesFromTable(path string, skipComments bool) []string {
	f, err := os.Open(path)
	if err != nil {
		g.logger.Warn("cannot read filesystem table", "path", path, "error", err)
		return nil
	}
	defer f.Close()
	return scanTable(f, skipComments)
}

func scanTable(r io.Reader, skipComments bool) []string {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || (skipComments && strings.HasPrefix(line, "#")) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if fields[1] == "/" || fields[1] == "/boot" || fields[1] == "/boot/efi" {
			out = append(out, fields[0])
		}
	}
	return out
}

// mountSourcesFromLsblk asks lsblk which devices carry the root and boot
// mountpoints. This catches setups where /proc/mounts reports a mapper or
// by-uuid source that the table signals missed.
func (g *Guard) mountSourcesFromLsblk(ctx context.Context) []string {
	res, err := g.runner.Output(ctx, tools.Command{
		Name: "lsblk",
		Args: []string{"-n", "-o", "NAME,MOUNTPOINT"},
	})
	if err != nil || res.ExitCode != 0 {
		g.logger.WarnContext(ctx, "lsblk signal unavailable", "error", err, "exit_code", res.ExitCode)
		return nil
	}

	var out []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if fields[1] == "/" || fields[1] == "/boot" || fields[1] == "/boot/efi" {
			// lsblk prefixes tree glyphs on partition rows.
			name := strings.TrimLeft(fields[0], "`|-─│└├ ")
			out = append(out, "/dev/"+name)
		}
	}
	return out
}

var (
	nvmePartition = regexp.MustCompile(`^(nvme\d+n\d+)p\d+$`)
	diskPartition = regexp.MustCompile(`^((?:sd|hd|vd)[a-z]+)\d*$`)
	nvmeDisk      = regexp.MustCompile(`^nvme\d+n\d+$`)
)

// normalize reduces any device reference (node path, partition, by-uuid
// symlink, mapper name) to a base drive name like "sda" or "nvme0n1".
// Returns false when the reference cannot be pinned to a physical drive.
func (g *Guard) normalize(device string) (string, bool) {
	if device == "" {
		return "", false
	}

	if strings.HasPrefix(device, "/dev/disk/by-") || strings.HasPrefix(device, "UUID=") ||
		strings.HasPrefix(device, "LABEL=") || strings.HasPrefix(device, "PARTUUID=") {
		resolved, ok := g.resolveSpecial(device)
		if !ok {
			return "", false
		}
		device = resolved
	}

	name := strings.TrimPrefix(device, "/dev/")
	if strings.ContainsRune(name, '/') {
		// mapper/LVM paths cannot be attributed to one drive here.
		return "", false
	}

	if m := nvmePartition.FindStringSubmatch(name); m != nil {
		return m[1], true
	}
	if nvmeDisk.MatchString(name) {
		return name, true
	}
	if m := diskPartition.FindStringSubmatch(name); m != nil {
		return m[1], true
	}
	return "", false
}

func (g *Guard) resolveSpecial(device string) (string, bool) {
	if strings.HasPrefix(device, "/dev/disk/by-") {
		resolved, err := g.resolve(device)
		if err != nil {
			return "", false
		}
		return resolved, true
	}
	// UUID=/LABEL= references need the by-uuid symlink tree.
	parts := strings.SplitN(device, "=", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", false
	}
	var dir string
	switch parts[0] {
	case "UUID":
		dir = "/dev/disk/by-uuid"
	case "LABEL":
		dir = "/dev/disk/by-label"
	case "PARTUUID":
		dir = "/dev/disk/by-partuuid"
	default:
		return "", false
	}
	resolved, err := g.resolve(filepath.Join(dir, parts[1]))
	if err != nil {
		return "", false
	}
	return resolved, true
}
