package bgp

// BGP path attribute type codes.
const (
	AttrTypeOrigin        uint8 = 1
	AttrTypeASPath        uint8 = 2
	AttrTypeNextHop       uint8 = 3
	AttrTypeMED           uint8 = 4
	AttrTypeLocalPref     uint8 = 5
	AttrTypeCommunity     uint8 = 8
	AttrTypeMPReachNLRI   uint8 = 14
	AttrTypeMPUnreachNLRI uint8 = 15
)

// AFI codes.
const (
	AFIIPv4 uint16 = 1
	AFIIPv6 uint16 = 2
)

// SAFI codes.
const (
	SAFIUnicast  uint8 = 1
	SAFIMPLSVPN  uint8 = 128
	SAFIFlowSpec uint8 = 133
)

// AS_PATH segment types.
const (
	ASPathSegmentSet      uint8 = 1
	ASPathSegmentSequence uint8 = 2
)

// FlowSpec NLRI component types (RFC 5575 section 4).
const (
	FlowSpecTypeDstPrefix uint8 = 1
	FlowSpecTypeSrcPrefix uint8 = 2
	FlowSpecTypeProtocol  uint8 = 3
	FlowSpecTypePort      uint8 = 4
	FlowSpecTypeDstPort   uint8 = 5
	FlowSpecTypeSrcPort   uint8 = 6
	FlowSpecTypeICMPType  uint8 = 7
	FlowSpecTypeICMPCode  uint8 = 8
)

// Origin values.
var OriginValues = map[uint8]string{
	0: "IGP",
	1: "EGP",
	2: "INCOMPLETE",
}

// BGP message types.
const (
	BGPMsgTypeUpdate uint8 = 2
)

// BGP header size: marker(16) + length(2) + type(1) = 19.
const BGPHeaderSize = 19

// PathAttributes holds the parsed path attributes of a BGP UPDATE.
type PathAttributes struct {
	Origin      string
	ASPath      []string
	NextHop     string
	MED         *uint32
	LocalPref   *uint32
	Communities []string

	// Raw MP_REACH_NLRI / MP_UNREACH_NLRI payloads. MPReach is decoded
	// later by (AFI, SAFI); MPUnreach is kept raw and not decoded.
	MPReach   []byte
	MPUnreach []byte
}

// FlowSpecRule is the match set decoded from one FlowSpec NLRI. Operator
// bytes are consumed but collapsed to the first value.
type FlowSpecRule struct {
	Destination string  `json:"destination,omitempty"`
	Source      string  `json:"source,omitempty"`
	Protocol    *uint8  `json:"protocol,omitempty"`
	Port        *uint16 `json:"port,omitempty"`
	DestPort    *uint16 `json:"dest_port,omitempty"`
	SourcePort  *uint16 `json:"source_port,omitempty"`
	ICMPType    *uint8  `json:"icmp_type,omitempty"`
	ICMPCode    *uint8  `json:"icmp_code,omitempty"`
}

// Empty reports whether no component was decoded.
func (r FlowSpecRule) Empty() bool {
	return r.Destination == "" && r.Source == "" && r.Protocol == nil &&
		r.Port == nil && r.DestPort == nil && r.SourcePort == nil &&
		r.ICMPType == nil && r.ICMPCode == nil
}

// VPNRoute is one VPNv4 prefix decoded from MP_REACH_NLRI.
type VPNRoute struct {
	Prefix  string
	RD      string
	Labels  []uint32
	NextHop string
}

// Update is the decoded content of one BGP UPDATE message.
type Update struct {
	WithdrawnPrefixes []string
	NLRIPrefixes      []string
	FlowSpecRules     []FlowSpecRule
	VPNRoutes         []VPNRoute
	Attrs             *PathAttributes
}
