package model

import (
	"errors"
	"fmt"
	"strings"
)

// DeviceIdentity is a stable reference to one physical drive. Path is the
// block-device node used as the sole key for job tracking; Serial survives
// re-enumeration and is what the API and database key drives by.
type DeviceIdentity struct {
	Path   string `json:"device_path"      db:"device_path"`
	Name   string `json:"device_name"      db:"device_name"`
	Serial string `json:"serial,omitempty" db:"serial"`
}

// Validate checks that the identity refers to a plausible block device node.
func (d DeviceIdentity) Validate() error {
	if d.Path == "" {
		return errors.New("device path is required")
	}
	if !strings.HasPrefix(d.Path, "/dev/") {
		return fmt.Errorf("device path %q is not under /dev", d.Path)
	}
	return nil
}

// Drive is a detected physical drive with everything the scanner learned
// about it. The executor only needs the DeviceIdentity subset; the rest is
// carried for the bay map and persistence.
type Drive struct {
	DeviceIdentity

	Model          string `json:"model,omitempty"           db:"model"`
	Capacity       string `json:"capacity,omitempty"        db:"capacity"`
	ConnectionType string `json:"connection_type,omitempty" db:"connection_type"`
	SATAVersion    string `json:"sata_version,omitempty"    db:"sata_version"`
	StablePath     string `json:"stable_path,omitempty"     db:"stable_path"`

	// SCSI address components resolved from sysfs; -1 when unknown.
	SCSIHost    int `json:"scsi_host"    db:"scsi_host"`
	SCSIChannel int `json:"scsi_channel" db:"scsi_channel"`
	SCSITarget  int `json:"scsi_target"  db:"scsi_target"`
	SCSILun     int `json:"scsi_lun"     db:"scsi_lun"`

	// BayNumber is the physical bay the backplane mapping resolved this
	// drive to; 0 when unmapped.
	BayNumber int `json:"bay_number,omitempty" db:"bay_number"`
}

// SCSIAddress renders the host:channel:target:lun tuple, or empty when the
// drive has no resolved SCSI address.
func (d Drive) SCSIAddress() string {
	if d.SCSITarget < 0 {
		return ""
	}
	return fmt.Sprintf("%d:%d:%d:%d", d.SCSIHost, d.SCSIChannel, d.SCSITarget, d.SCSILun)
}
