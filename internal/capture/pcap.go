// Package capture turns offline 802.11 captures into the per-device probe
// archive the randomisation simulator consumes. Only probe-request frames
// matter: they are what devices broadcast while unassociated, and their
// directed SSIDs are the identity signal the engine clusters on.
package capture

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/airtrace/probelink-engine/pkg/models"
)

// SSIDInterner assigns stable small integer ids to network names. Id 0 is
// reserved for the broadcast (empty) SSID; directed SSIDs start at 1 in
// first-seen order.
type SSIDInterner struct {
	ids  map[string]uint32
	next uint32
}

func NewSSIDInterner() *SSIDInterner {
	return &SSIDInterner{ids: make(map[string]uint32), next: 1}
}

// Intern returns the id for ssid, allocating one on first sight.
func (in *SSIDInterner) Intern(ssid string) uint32 {
	if ssid == "" {
		return 0
	}
	if id, ok := in.ids[ssid]; ok {
		return id
	}
	id := in.next
	in.next++
	in.ids[ssid] = id
	return id
}

// Table returns the id→name mapping for directed SSIDs seen so far.
func (in *SSIDInterner) Table() map[uint32]string {
	out := make(map[uint32]string, len(in.ids))
	for name, id := range in.ids {
		out[id] = name
	}
	return out
}

// Result is one parsed capture: per-device probe sequences plus the SSID
// name table behind the interned ids.
type Result struct {
	Devices map[string][]models.Probe
	SSIDs   map[uint32]string
	Frames  int
}

// ImportPCAP reads an offline capture and extracts every probe-request
// frame into per-transmitter probe records. Timestamps are seconds
// relative to the first probe request in the file. Frames gopacket cannot
// decode are skipped, not fatal; monitor-mode captures routinely contain
// corrupt frames.
func ImportPCAP(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture %s: %w", path, err)
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("capture %s: %w", path, err)
	}

	interner := NewSSIDInterner()
	res := &Result{Devices: make(map[string][]models.Probe)}

	var epoch float64
	haveEpoch := false

	source := gopacket.NewPacketSource(r, r.LinkType())
	for {
		packet, err := source.NextPacket()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("capture %s: %w", path, err)
		}

		dot11, ok := packet.Layer(layers.LayerTypeDot11).(*layers.Dot11)
		if !ok || dot11.Type != layers.Dot11TypeMgmtProbeReq {
			continue
		}
		res.Frames++

		elements := informationElements(packet)
		ts := float64(packet.Metadata().Timestamp.UnixNano()) / 1e9
		if !haveEpoch {
			epoch = ts
			haveEpoch = true
		}

		mac := dot11.Address2.String()
		res.Devices[mac] = append(res.Devices[mac], models.Probe{
			SSID:        interner.Intern(ssidOf(elements)),
			Timestamp:   ts - epoch,
			Fingerprint: elementFingerprint(elements),
		})
	}

	res.SSIDs = interner.Table()
	return res, nil
}

func informationElements(packet gopacket.Packet) []*layers.Dot11InformationElement {
	var elements []*layers.Dot11InformationElement
	for _, layer := range packet.Layers() {
		if ie, ok := layer.(*layers.Dot11InformationElement); ok {
			elements = append(elements, ie)
		}
	}
	return elements
}

// ssidOf returns the directed SSID from the frame's information elements,
// or "" for broadcast (wildcard) probes.
func ssidOf(elements []*layers.Dot11InformationElement) string {
	for _, ie := range elements {
		if ie.ID == layers.Dot11InformationElementIDSSID {
			return string(ie.Info)
		}
	}
	return ""
}

// elementFingerprint renders the frame's information-element layout as a
// comma-joined id list. Drivers order and select elements differently
// enough that the layout distinguishes device models, which is the
// secondary signal the fingerprint filter votes on.
func elementFingerprint(elements []*layers.Dot11InformationElement) string {
	if len(elements) == 0 {
		return ""
	}
	ids := make([]string, len(elements))
	for i, ie := range elements {
		ids[i] = strconv.Itoa(int(ie.ID))
	}
	return strings.Join(ids, ",")
}
