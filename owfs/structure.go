package owfs

import (
	"strconv"
	"strings"

	"github.com/jangala-dev/owgo/device"
	"github.com/jangala-dev/owgo/errcode"
	"github.com/jangala-dev/owgo/pathname"
)

// structure/ describes device *classes*, not bound instances (spec.md
// §4.8: "dir(path) enumerates ... the FileType list of a device").
// Reading a leaf returns a comma-joined metadata record rather than
// the property's live value -- there is no device to read from, only
// the registered descriptor.

func (d *Dispatcher) readStructure(name pathname.Name, buf []byte, offset int) (int, error) {
	if !name.HasDevice {
		return 0, errcode.EISDIR
	}
	dev, ok := device.Lookup(name.Family)
	if !ok {
		return 0, errcode.ENODEV
	}
	if !name.HasProperty {
		return 0, errcode.EISDIR
	}
	ft, ok := dev.FileType(name.Property)
	if !ok {
		return 0, errcode.ENOENT
	}
	text := describeFileType(ft)
	return copyOffset(buf, text, offset)
}

func (d *Dispatcher) dirStructure(name pathname.Name, emit func(string)) error {
	if !name.HasDevice {
		for _, dev := range device.All() {
			emit(strings.ToUpper(strconv.FormatUint(uint64(dev.Family), 16)))
		}
		return nil
	}
	dev, ok := device.Lookup(name.Family)
	if !ok {
		return errcode.ENODEV
	}
	if name.HasProperty {
		return errcode.ENOTDIR
	}
	for _, ft := range dev.Files {
		emit(ft.Name)
	}
	return nil
}

// describeFileType renders "len,format,access,change,elements" -- a
// stable, machine-parsable metadata line, not a spec.md-mandated wire
// format (structure/ content is a supplemented feature; spec.md itself
// only requires that dir() enumerate the FileType list).
func describeFileType(ft *device.FileType) string {
	access := "rw"
	switch {
	case ft.Read == nil && ft.BulkRead == nil:
		access = "wo"
	case ft.Write == nil && ft.BulkWrite == nil:
		access = "ro"
	}

	elements := 1
	if ft.Aggregate != nil {
		elements = ft.Aggregate.Elements
	}

	fields := []string{
		strconv.Itoa(ft.NominalLen),
		ft.Format.String(),
		access,
		changeName(ft.Change),
		strconv.Itoa(elements),
	}
	return strings.Join(fields, ",")
}

func changeName(c device.ChangeClass) string {
	switch c {
	case device.ChangeStatic:
		return "static"
	case device.ChangeStable:
		return "stable"
	case device.ChangeVolatile:
		return "volatile"
	case device.ChangeAlarm:
		return "alarm"
	case device.ChangeDirectory:
		return "directory"
	case device.ChangeSubdir:
		return "subdir"
	default:
		return "unknown"
	}
}
