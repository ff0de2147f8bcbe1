package image

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/vmi"
)

var ErrBadImage = errors.New("malformed image.ini")

// ParseImage parses image.ini.
func ParseImage(input io.Reader) (*Parsed, error) {
	ini, err := ParseIni(input)
	if err != nil {
		return nil, err
	}
	parsed := &Parsed{
		Info:    Info{AddressWidth: 64},
		Symbols: make(map[string]vmi.Addr),
	}

	imgSec, ok := ini.Sections[ImageSectionName]
	if !ok {
		return nil, fmt.Errorf("%w: no [%s] section", ErrBadImage, ImageSectionName)
	}
	parsed.Info.Version = imgSec[VersionKey]
	parsed.Info.Description = imgSec[DescriptionKey]
	parsed.Info.Profile = imgSec[ProfileKey]
	if s, ok := imgSec[KernelDTBKey]; ok {
		v, err := parseUint(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadImage, KernelDTBKey, err)
		}
		parsed.Info.KernelDTB = vmi.Addr(v)
	}
	if s, ok := imgSec[AddressWidthKey]; ok {
		v, err := parseUint(s)
		if err != nil || (v != 32 && v != 64) {
			return nil, fmt.Errorf("%w: %s must be 32 or 64, got %q", ErrBadImage, AddressWidthKey, s)
		}
		parsed.Info.AddressWidth = int(v)
	}

	for name, val := range ini.Sections[SymbolsSectionName] {
		v, err := parseUint(val)
		if err != nil {
			return nil, fmt.Errorf("%w: symbol %s: %v", ErrBadImage, name, err)
		}
		parsed.Symbols[name] = vmi.Addr(v)
	}

	// Dump sections (prefix "dump"), in file order
	for _, secName := range ini.Order {
		if !strings.HasPrefix(secName, DumpFileSectionPrefix) {
			continue
		}
		dump, err := parseDump(secName, ini.Sections[secName])
		if err != nil {
			return nil, err
		}
		parsed.Dumps = append(parsed.Dumps, dump)
	}

	return parsed, nil
}

func parseDump(secName string, secMap map[string]string) (DumpDef, error) {
	dump := DumpDef{Section: secName, Compression: CompressionNone}

	file, ok := secMap[DumpFileKey]
	if !ok || file == "" {
		return dump, fmt.Errorf("%w: [%s] has no %s", ErrBadImage, secName, DumpFileKey)
	}
	dump.Path = file

	if _, ok := secMap[DumpAddressKey]; !ok {
		return dump, fmt.Errorf("%w: [%s] has no %s", ErrBadImage, secName, DumpAddressKey)
	}
	for key, dst := range map[string]*uint64{
		DumpAddressKey: (*uint64)(&dump.Address),
		DumpLengthKey:  &dump.Length,
		DumpOffsetKey:  &dump.Offset,
	} {
		s, ok := secMap[key]
		if !ok {
			continue
		}
		v, err := parseUint(s)
		if err != nil {
			return dump, fmt.Errorf("%w: [%s] %s: %v", ErrBadImage, secName, key, err)
		}
		*dst = v
	}

	if space, ok := secMap[DumpSpaceKey]; ok {
		dump.Space = space
	}
	if c, ok := secMap[DumpCompressionKey]; ok && c != "" {
		c = strings.ToLower(c)
		if c != CompressionNone && c != CompressionSnappy {
			return dump, fmt.Errorf("%w: [%s] unknown compression %q", ErrBadImage, secName, c)
		}
		dump.Compression = c
	}
	return dump, nil
}

func parseUint(s string) (uint64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}
