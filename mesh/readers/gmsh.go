package readers

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/notargets/RPTKernel/element"
	"github.com/notargets/RPTKernel/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// Gmsh element type codes used by the reader
const (
	gmshTriangle = 2
	gmshTet      = 4
)

// ReadMeshFile reads a gmsh 2.2 ASCII mesh file
func ReadMeshFile(meshfile string) (*mesh.Mesh, error) {
	f, err := os.Open(meshfile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	msh, err := ReadGmsh(f)
	if err != nil {
		return nil, fmt.Errorf("mesh file %s: %w", meshfile, err)
	}
	return msh, nil
}

// ReadGmsh parses the $Nodes and $Elements sections of a gmsh 2.2 ASCII mesh.
// Tetrahedra make a 3D mesh; without tetrahedra the triangles make a 2D mesh.
// Other element types are ignored. Node tags become 0-based vertex indices in
// file order.
func ReadGmsh(r io.Reader) (*mesh.Mesh, error) {
	var (
		sc       = bufio.NewScanner(r)
		line     int
		verts    []r3.Vec
		tagToV   = make(map[int]int)
		tets     [][]int
		tris     [][]int
		sawNodes bool
	)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	next := func() (string, bool) {
		for sc.Scan() {
			line++
			s := strings.TrimSpace(sc.Text())
			if s != "" {
				return s, true
			}
		}
		return "", false
	}
	count := func(section string) (int, error) {
		s, ok := next()
		if !ok {
			return 0, fmt.Errorf("line %d: %s: missing entry count", line, section)
		}
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("line %d: %s: bad entry count %q", line, section, s)
		}
		return n, nil
	}

	for {
		s, ok := next()
		if !ok {
			break
		}
		switch s {
		case "$MeshFormat":
			hdr, _ := next()
			if f := strings.Fields(hdr); len(f) < 2 || !strings.HasPrefix(f[0], "2") || f[1] != "0" {
				return nil, fmt.Errorf("line %d: unsupported mesh format %q, want ASCII 2.x", line, hdr)
			}
		case "$Nodes":
			n, err := count("$Nodes")
			if err != nil {
				return nil, err
			}
			verts = make([]r3.Vec, 0, n)
			for i := 0; i < n; i++ {
				s, _ = next()
				f := strings.Fields(s)
				if len(f) < 4 {
					return nil, fmt.Errorf("line %d: node needs tag x y z, got %q", line, s)
				}
				tag, err := strconv.Atoi(f[0])
				if err != nil {
					return nil, fmt.Errorf("line %d: bad node tag %q", line, f[0])
				}
				var xyz [3]float64
				for j := range xyz {
					if xyz[j], err = strconv.ParseFloat(f[j+1], 64); err != nil {
						return nil, fmt.Errorf("line %d: bad coordinate %q", line, f[j+1])
					}
				}
				if _, dup := tagToV[tag]; dup {
					return nil, fmt.Errorf("line %d: duplicate node tag %d", line, tag)
				}
				tagToV[tag] = len(verts)
				verts = append(verts, r3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]})
			}
			sawNodes = true
		case "$Elements":
			if !sawNodes {
				return nil, fmt.Errorf("line %d: $Elements before $Nodes", line)
			}
			n, err := count("$Elements")
			if err != nil {
				return nil, err
			}
			for i := 0; i < n; i++ {
				s, _ = next()
				f := strings.Fields(s)
				if len(f) < 3 {
					return nil, fmt.Errorf("line %d: short element record %q", line, s)
				}
				typ, err1 := strconv.Atoi(f[1])
				ntags, err2 := strconv.Atoi(f[2])
				if err1 != nil || err2 != nil || ntags < 0 {
					return nil, fmt.Errorf("line %d: bad element header %q", line, s)
				}
				var nv int
				switch typ {
				case gmshTet:
					nv = 4
				case gmshTriangle:
					nv = 3
				default:
					continue
				}
				if len(f) != 3+ntags+nv {
					return nil, fmt.Errorf("line %d: element type %d needs %d nodes, got %q", line, typ, nv, s)
				}
				cell := make([]int, nv)
				for j := range cell {
					tag, err := strconv.Atoi(f[3+ntags+j])
					if err != nil {
						return nil, fmt.Errorf("line %d: bad node tag %q", line, f[3+ntags+j])
					}
					v, ok := tagToV[tag]
					if !ok {
						return nil, fmt.Errorf("line %d: unknown node tag %d", line, tag)
					}
					cell[j] = v
				}
				if typ == gmshTet {
					tets = append(tets, cell)
				} else {
					tris = append(tris, cell)
				}
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	switch {
	case len(tets) > 0:
		return mesh.New(element.D3, verts, tets)
	case len(tris) > 0:
		return mesh.New(element.D2, verts, tris)
	}
	return nil, fmt.Errorf("mesh has no tetrahedra or triangles")
}
