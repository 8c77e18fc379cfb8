package checkpoint

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"

	"github.com/notargets/RPTKernel/element"
	"github.com/notargets/RPTKernel/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	archiveMagic   = "RPTK"
	archiveVersion = 1
	headerSize     = 16
)

// Kind identifies what an archive holds
type Kind uint8

const (
	KindMesh   Kind = 1
	KindCounts Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindMesh:
		return "mesh"
	case KindCounts:
		return "counts"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Archive layout, little endian:
//
//	Magic "RPTK" (4 bytes)
//	Kind (1 byte)
//	Version (2 bytes)
//	Compression (1 byte)
//	Uncompressed payload length (4 bytes)
//	CRC32 IEEE of the uncompressed payload (4 bytes)
//	Payload, compressed as recorded
func seal(kind Kind, payload []byte, c Compression) ([]byte, error) {
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, fmt.Errorf("%v payload of %d bytes is too large", kind, len(payload))
	}
	body, used, err := compress(payload, c)
	if err != nil {
		return nil, err
	}
	out := make([]byte, headerSize, headerSize+len(body))
	copy(out, archiveMagic)
	out[4] = byte(kind)
	binary.LittleEndian.PutUint16(out[5:7], archiveVersion)
	out[7] = byte(used)
	binary.LittleEndian.PutUint32(out[8:12], uint32(len(payload)))
	binary.LittleEndian.PutUint32(out[12:16], crc32.ChecksumIEEE(payload))
	return append(out, body...), nil
}

func open(data []byte, kind Kind) ([]byte, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(data))
	}
	if string(data[:4]) != archiveMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorrupt, data[:4])
	}
	if got := Kind(data[4]); got != kind {
		return nil, fmt.Errorf("%w: archive holds %v, expected %v", ErrCorrupt, got, kind)
	}
	if v := binary.LittleEndian.Uint16(data[5:7]); v != archiveVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}
	c := Compression(data[7])
	rawLen := int(binary.LittleEndian.Uint32(data[8:12]))
	sum := binary.LittleEndian.Uint32(data[12:16])

	payload, err := decompress(data[headerSize:], c, rawLen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if crc32.ChecksumIEEE(payload) != sum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	return payload, nil
}

// EncodeMesh serializes the mesh geometry, connectivity and vertex to node map
//
//	Dim, NumVertices, NumElements, NumNodes (uint32 each)
//	Vertices (3 float64 each)
//	EToV (Dim+1 uint32 per cell)
//	VToN (uint32 per vertex)
func EncodeMesh(m *mesh.Mesh, c Compression) ([]byte, error) {
	nv := m.Dim.NumVertices()
	pb := newPayloadBuffer(make([]byte, 0, 16+24*m.NumVertices+4*nv*m.NumElements+4*m.NumVertices))
	pb.writeUint32(uint32(m.Dim))
	pb.writeUint32(uint32(m.NumVertices))
	pb.writeUint32(uint32(m.NumElements))
	pb.writeUint32(uint32(m.NumNodes))
	for _, v := range m.Vertices {
		pb.writeFloat64(v.X)
		pb.writeFloat64(v.Y)
		pb.writeFloat64(v.Z)
	}
	for _, verts := range m.EToV {
		for _, v := range verts {
			pb.writeUint32(uint32(v))
		}
	}
	for _, n := range m.VToN {
		pb.writeUint32(uint32(n))
	}
	return seal(KindMesh, pb.buf, c)
}

// DecodeMesh rebuilds a mesh written by EncodeMesh
func DecodeMesh(data []byte) (*mesh.Mesh, error) {
	payload, err := open(data, KindMesh)
	if err != nil {
		return nil, err
	}
	pb := newPayloadBuffer(payload)
	dim := element.Dimensionality(pb.readUint32())
	numVerts := int(pb.readUint32())
	numElements := int(pb.readUint32())
	numNodes := int(pb.readUint32())
	if pb.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, pb.err)
	}
	nv := dim.NumVertices()
	if want := 16 + 24*numVerts + 4*nv*numElements + 4*numVerts; want != len(payload) {
		return nil, fmt.Errorf("%w: mesh payload is %d bytes, header counts need %d", ErrCorrupt, len(payload), want)
	}

	verts := make([]r3.Vec, numVerts)
	for i := range verts {
		verts[i] = r3.Vec{X: pb.readFloat64(), Y: pb.readFloat64(), Z: pb.readFloat64()}
	}
	EToV := make([][]int, numElements)
	for k := range EToV {
		EToV[k] = make([]int, nv)
		for i := range EToV[k] {
			EToV[k][i] = int(pb.readUint32())
		}
	}
	VToN := make([]int, numVerts)
	for i := range VToN {
		VToN[i] = int(pb.readUint32())
	}
	if pb.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, pb.err)
	}

	m, err := mesh.New(dim, verts, EToV)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err = m.SetNodeMap(VToN, numNodes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return m, nil
}

// EncodeCounts serializes one detector's nodal count field
//
//	Detector, NumNodes (uint32 each)
//	Counts (float64 per node)
func EncodeCounts(detector int, counts []float64, c Compression) ([]byte, error) {
	pb := newPayloadBuffer(make([]byte, 0, 8+8*len(counts)))
	pb.writeUint32(uint32(detector))
	pb.writeUint32(uint32(len(counts)))
	for _, v := range counts {
		pb.writeFloat64(v)
	}
	return seal(KindCounts, pb.buf, c)
}

// DecodeCounts returns the detector index and field written by EncodeCounts
func DecodeCounts(data []byte) (int, []float64, error) {
	payload, err := open(data, KindCounts)
	if err != nil {
		return 0, nil, err
	}
	pb := newPayloadBuffer(payload)
	detector := int(pb.readUint32())
	n := int(pb.readUint32())
	if pb.err != nil || 8+8*n != len(payload) {
		return 0, nil, fmt.Errorf("%w: counts payload is %d bytes for %d nodes", ErrCorrupt, len(payload), n)
	}
	counts := make([]float64, n)
	for i := range counts {
		counts[i] = pb.readFloat64()
	}
	return detector, counts, pb.err
}

type payloadBuffer struct {
	buf []byte
	pos int
	err error
}

func newPayloadBuffer(b []byte) *payloadBuffer {
	return &payloadBuffer{buf: b}
}

func (p *payloadBuffer) writeUint32(v uint32) {
	p.buf = binary.LittleEndian.AppendUint32(p.buf, v)
}

func (p *payloadBuffer) writeFloat64(v float64) {
	p.buf = binary.LittleEndian.AppendUint64(p.buf, math.Float64bits(v))
}

func (p *payloadBuffer) readUint32() uint32 {
	if p.err != nil {
		return 0
	}
	if p.pos+4 > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return 0
	}
	v := binary.LittleEndian.Uint32(p.buf[p.pos:])
	p.pos += 4
	return v
}

func (p *payloadBuffer) readFloat64() float64 {
	if p.err != nil {
		return 0
	}
	if p.pos+8 > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return 0
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(p.buf[p.pos:]))
	p.pos += 8
	return v
}
