// Package geometry decodes STL geometry artifacts.
// Both binary and ASCII STL are supported; the format is sniffed from the
// input. Decoding is pure and allocation-bounded so it can run on loader
// workers against large files.
package geometry

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Format names reported in decode errors.
const (
	FormatBinary = "binary"
	FormatASCII  = "ascii"
)

const (
	binaryHeaderSize   = 84 // 80-byte comment + uint32 triangle count
	binaryTriangleSize = 50 // normal + 3 vertices (float32) + attribute count
)

// DecodeError describes malformed or truncated STL input.
type DecodeError struct {
	Format string
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode stl (%s) at offset %d: %s", e.Format, e.Offset, e.Reason)
}

// Vec3 is a point or direction in case coordinates.
type Vec3 [3]float32

// Triangle is one facet of a solid.
type Triangle struct {
	Normal   Vec3
	Vertices [3]Vec3
}

// Solid is a decoded STL body.
type Solid struct {
	Name      string
	Triangles []Triangle
}

// Bounds returns the axis-aligned bounding box of the solid.
// A solid without triangles has zero bounds.
func (s *Solid) Bounds() (min, max Vec3) {
	if len(s.Triangles) == 0 {
		return Vec3{}, Vec3{}
	}

	min = Vec3{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32}
	max = Vec3{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32}
	for _, t := range s.Triangles {
		for _, v := range t.Vertices {
			for i := range 3 {
				if v[i] < min[i] {
					min[i] = v[i]
				}
				if v[i] > max[i] {
					max[i] = v[i]
				}
			}
		}
	}
	return min, max
}

// Decode parses STL bytes, sniffing binary vs ASCII.
func Decode(data []byte) (*Solid, error) {
	if isASCII(data) {
		return decodeASCII(data)
	}
	return decodeBinary(data)
}

// isASCII reports whether the input looks like ASCII STL.
// A binary file may legally start with "solid" in its comment header, so a
// facet keyword (or the terminator of an empty solid) is required too.
func isASCII(data []byte) bool {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	trimmed := bytes.TrimLeft(head, " \t\r\n")
	if !bytes.HasPrefix(trimmed, []byte("solid")) {
		return false
	}
	if len(data) < binaryHeaderSize {
		return true
	}
	return bytes.Contains(head, []byte("facet")) || bytes.Contains(head, []byte("endsolid"))
}

func decodeBinary(data []byte) (*Solid, error) {
	if len(data) < binaryHeaderSize {
		return nil, &DecodeError{Format: FormatBinary, Offset: len(data), Reason: "truncated header"}
	}

	count := binary.LittleEndian.Uint32(data[80:84])
	want := binaryHeaderSize + int(count)*binaryTriangleSize
	if len(data) < want {
		return nil, &DecodeError{
			Format: FormatBinary,
			Offset: len(data),
			Reason: fmt.Sprintf("truncated triangle data: have %d bytes, want %d for %d triangles", len(data), want, count),
		}
	}

	name := strings.TrimRight(string(bytes.TrimRight(data[:80], "\x00")), " ")
	name = strings.TrimPrefix(name, "solid ")

	solid := &Solid{
		Name:      strings.TrimSpace(name),
		Triangles: make([]Triangle, 0, count),
	}

	offset := binaryHeaderSize
	for range count {
		var tri Triangle
		tri.Normal = readVec3(data[offset:])
		for v := range 3 {
			tri.Vertices[v] = readVec3(data[offset+12+v*12:])
		}
		solid.Triangles = append(solid.Triangles, tri)
		offset += binaryTriangleSize
	}

	return solid, nil
}

// readVec3 decodes three little-endian float32 values.
func readVec3(b []byte) Vec3 {
	return Vec3{
		math.Float32frombits(binary.LittleEndian.Uint32(b[0:4])),
		math.Float32frombits(binary.LittleEndian.Uint32(b[4:8])),
		math.Float32frombits(binary.LittleEndian.Uint32(b[8:12])),
	}
}

func decodeASCII(data []byte) (*Solid, error) {
	solid := &Solid{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		tri        Triangle
		vertexIdx  int
		inFacet    bool
		lineOffset int
	)

	fail := func(reason string) (*Solid, error) {
		return nil, &DecodeError{Format: FormatASCII, Offset: lineOffset, Reason: reason}
	}

	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) == 0 {
			lineOffset += len(line) + 1
			continue
		}

		switch fields[0] {
		case "solid":
			if len(fields) > 1 {
				solid.Name = fields[1]
			}
		case "facet":
			if inFacet {
				return fail("nested facet")
			}
			if len(fields) != 5 || fields[1] != "normal" {
				return fail("malformed facet line")
			}
			normal, err := parseVec3(fields[2:5])
			if err != nil {
				return fail("malformed facet normal: " + err.Error())
			}
			tri = Triangle{Normal: normal}
			vertexIdx = 0
			inFacet = true
		case "vertex":
			if !inFacet {
				return fail("vertex outside facet")
			}
			if vertexIdx >= 3 {
				return fail("more than three vertices in facet")
			}
			if len(fields) != 4 {
				return fail("malformed vertex line")
			}
			v, err := parseVec3(fields[1:4])
			if err != nil {
				return fail("malformed vertex: " + err.Error())
			}
			tri.Vertices[vertexIdx] = v
			vertexIdx++
		case "endfacet":
			if !inFacet {
				return fail("endfacet outside facet")
			}
			if vertexIdx != 3 {
				return fail(fmt.Sprintf("facet has %d vertices, want 3", vertexIdx))
			}
			solid.Triangles = append(solid.Triangles, tri)
			inFacet = false
		case "outer", "endloop":
			// Loop markers carry no data.
		case "endsolid":
			if inFacet {
				return fail("endsolid inside facet")
			}
			return solid, nil
		default:
			return fail("unexpected token " + strconv.Quote(fields[0]))
		}

		lineOffset += len(line) + 1
	}

	if err := scanner.Err(); err != nil {
		return fail("scan: " + err.Error())
	}
	if inFacet {
		return fail("unterminated facet")
	}
	return fail("missing endsolid")
}

// parseVec3 parses three decimal fields.
func parseVec3(fields []string) (Vec3, error) {
	var v Vec3
	for i, f := range fields {
		val, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return Vec3{}, err
		}
		v[i] = float32(val)
	}
	return v, nil
}
