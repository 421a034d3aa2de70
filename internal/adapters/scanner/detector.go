// Package scanner discovers the physical drives attached to the bench,
// resolves their identity and SCSI topology, and keeps the drive inventory
// current while tests run.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/compudrive/drivebench/internal/core"
	"github.com/compudrive/drivebench/internal/domain/model"
	"github.com/compudrive/drivebench/internal/tools"
)

// DetectorOptions configures a Detector. Zero values use the live system
// paths.
type DetectorOptions struct {
	Runner tools.Runner
	// Guard filters out OS drives; the detector never reports them.
	Guard core.SafetyGuard
	// SysBlockPath is the sysfs block root; defaults to /sys/block.
	SysBlockPath string
	// ByPathDir holds the stable udev symlinks; defaults to
	// /dev/disk/by-path.
	ByPathDir string
	Logger    *slog.Logger
}

// Detector probes attached block devices with lsblk, smartctl and sysfs.
type Detector struct {
	runner   tools.Runner
	guard    core.SafetyGuard
	sysBlock string
	byPath   string
	logger   *slog.Logger
}

// NewDetector constructs a detector.
func NewDetector(opts DetectorOptions) *Detector {
	d := &Detector{
		runner:   opts.Runner,
		guard:    opts.Guard,
		sysBlock: opts.SysBlockPath,
		byPath:   opts.ByPathDir,
		logger:   opts.Logger,
	}
	if d.runner == nil {
		d.runner = &tools.ExecRunner{}
	}
	if d.sysBlock == "" {
		d.sysBlock = "/sys/block"
	}
	if d.byPath == "" {
		d.byPath = "/dev/disk/by-path"
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

var scannableDevice = regexp.MustCompile(`^(sd[a-z]+|hd[a-z]+|nvme\d+n\d+)$`)

// Scan enumerates the attached drives, excluding anything the safety guard
// marks as hosting the OS. Per-drive probe failures skip that drive rather
// than failing the scan.
func (d *Detector) Scan(ctx context.Context) []model.Drive {
	names, err := d.listDisks(ctx)
	if err != nil {
		d.logger.WarnContext(ctx, "drive enumeration failed", "error", err)
		return nil
	}

	var drives []model.Drive
	for _, name := range names {
		path := "/dev/" + name
		if d.guard != nil && d.guard.IsProtected(ctx, path) {
			continue
		}
		drive, derr := d.probe(ctx, name)
		if derr != nil {
			d.logger.WarnContext(ctx, "drive probe failed", "device", path, "error", derr)
			continue
		}
		drives = append(drives, drive)
	}

	sort.Slice(drives, func(i, j int) bool { return drives[i].Path < drives[j].Path })
	return drives
}

func (d *Detector) listDisks(ctx context.Context) ([]string, error) {
	res, err := d.runner.Output(ctx, tools.Command{
		Name:    "lsblk",
		Args:    []string{"-d", "-n", "-o", "NAME,TYPE"},
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("lsblk exited with status %d", res.ExitCode)
	}

	var names []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 || fields[1] != "disk" {
			continue
		}
		if scannableDevice.MatchString(fields[0]) {
			names = append(names, fields[0])
		}
	}
	return names, nil
}

func (d *Detector) probe(ctx context.Context, name string) (model.Drive, error) {
	drive := model.Drive{
		DeviceIdentity: model.DeviceIdentity{
			Path: "/dev/" + name,
			Name: name,
		},
		SCSIHost:    -1,
		SCSIChannel: -1,
		SCSITarget:  -1,
		SCSILun:     -1,
	}

	info, err := d.runner.Output(ctx, tools.Command{
		Name:    "smartctl",
		Args:    []string{"-i", drive.Path},
		Timeout: 10 * time.Second,
	})
	if err == nil && info.ExitCode&0x03 == 0 {
		applySmartInfo(&drive, info.Stdout)
	}
	if drive.Serial == "" {
		drive.Serial = d.readSysAttr(name, "device/serial")
	}
	if drive.Model == "" {
		drive.Model = d.readSysAttr(name, "device/model")
	}
	if drive.Serial == "" {
		return drive, fmt.Errorf("no serial for %s", drive.Path)
	}

	drive.Capacity = d.capacity(ctx, drive.Path)
	drive.StablePath = d.stablePath(drive.Path)
	d.applySCSIAddress(&drive, name)

	// SCSI target is the conventional bay position on direct-attach
	// backplanes; the configured layout can override it later.
	if drive.SCSITarget >= 0 {
		drive.BayNumber = drive.SCSITarget
	}
	return drive, nil
}

var (
	serialLine      = regexp.MustCompile(`(?i)^Serial Number:\s*(\S.*)$`)
	modelLine       = regexp.MustCompile(`^(?:Device Model|Model Number|Model Family):\s*(\S.*)$`)
	sataVersionLine = regexp.MustCompile(`(?i)SATA Version is:\s*SATA (\d)`)
)

func applySmartInfo(drive *model.Drive, output string) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if m := serialLine.FindStringSubmatch(line); m != nil {
			drive.Serial = strings.TrimSpace(m[1])
		}
		if m := modelLine.FindStringSubmatch(line); m != nil && drive.Model == "" {
			drive.Model = strings.TrimSpace(m[1])
		}
		if m := sataVersionLine.FindStringSubmatch(line); m != nil {
			drive.SATAVersion = "SATA" + m[1]
		}
	}

	lower := strings.ToLower(output)
	switch {
	case strings.Contains(lower, "sas"):
		drive.ConnectionType = "SAS"
	case strings.Contains(lower, "sata"), strings.Contains(lower, "ata "):
		drive.ConnectionType = "SATA"
	case strings.Contains(lower, "nvme"):
		drive.ConnectionType = "NVMe"
	}
}

func (d *Detector) capacity(ctx context.Context, path string) string {
	res, err := d.runner.Output(ctx, tools.Command{
		Name:    "lsblk",
		Args:    []string{"-b", "-d", "-n", "-o", "SIZE", path},
		Timeout: 5 * time.Second,
	})
	if err != nil || res.ExitCode != 0 {
		return ""
	}
	sizeBytes, err := strconv.ParseInt(strings.TrimSpace(res.Stdout), 10, 64)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%.2f GB", float64(sizeBytes)/(1<<30))
}

// stablePath finds the by-path symlink pointing at this device, which
// survives reboots and re-enumeration.
func (d *Detector) stablePath(devicePath string) string {
	entries, err := os.ReadDir(d.byPath)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		link := filepath.Join(d.byPath, e.Name())
		resolved, rerr := filepath.EvalSymlinks(link)
		if rerr == nil && resolved == devicePath {
			return e.Name()
		}
	}
	return ""
}

// applySCSIAddress reads the h:c:t:l tuple from sysfs.
func (d *Detector) applySCSIAddress(drive *model.Drive, name string) {
	dir := filepath.Join(d.sysBlock, name, "device", "scsi_device")
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) == 0 {
		return
	}
	parts := strings.Split(entries[0].Name(), ":")
	if len(parts) != 4 {
		return
	}
	vals := make([]int, 4)
	for i, p := range parts {
		v, perr := strconv.Atoi(p)
		if perr != nil {
			return
		}
		vals[i] = v
	}
	drive.SCSIHost, drive.SCSIChannel, drive.SCSITarget, drive.SCSILun = vals[0], vals[1], vals[2], vals[3]
}

func (d *Detector) readSysAttr(name, rel string) string {
	b, err := os.ReadFile(filepath.Join(d.sysBlock, name, rel))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
