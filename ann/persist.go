package ann

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/go-crypt/x/blake2b"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

const (
	fileMagic    = "CRTA"
	fileVersion  = 1
	headerSize   = len(fileMagic) + 2
	checksumSize = 32
)

// params are the graph settings persisted alongside the nodes.
type params struct {
	dim            int
	capacity       int
	m              int
	efConstruction int
	ef             int
}

// encoder appends mus-encoded values to a growing buffer.
type encoder struct {
	buf []byte
}

func (e *encoder) uint(v uint64) {
	n := len(e.buf)
	e.buf = append(e.buf, make([]byte, varint.Uint64.Size(v))...)
	varint.Uint64.Marshal(v, e.buf[n:])
}

func (e *encoder) int(v int64) {
	n := len(e.buf)
	e.buf = append(e.buf, make([]byte, varint.Int64.Size(v))...)
	varint.Int64.Marshal(v, e.buf[n:])
}

func (e *encoder) float(v float32) {
	n := len(e.buf)
	e.buf = append(e.buf, make([]byte, raw.Float32.Size(v))...)
	raw.Float32.Marshal(v, e.buf[n:])
}

// decoder reads mus-encoded values; the first failure sticks.
type decoder struct {
	bs  []byte
	off int
	err error
}

func (d *decoder) uint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(d.bs[d.off:])
	d.off += n
	if err != nil {
		d.err = err
	}
	return v
}

func (d *decoder) int() int64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(d.bs[d.off:])
	d.off += n
	if err != nil {
		d.err = err
	}
	return v
}

func (d *decoder) float() float32 {
	if d.err != nil {
		return 0
	}
	v, n, err := raw.Float32.Unmarshal(d.bs[d.off:])
	d.off += n
	if err != nil {
		d.err = err
	}
	return v
}

// remaining guards slice allocations against absurd encoded lengths.
func (d *decoder) remaining() uint64 {
	return uint64(len(d.bs) - d.off)
}

func encodeGraph(g *graph, p params) []byte {
	e := &encoder{buf: make([]byte, 0, 64+g.len()*(p.dim*4+16))}
	e.uint(uint64(p.dim))
	e.uint(uint64(p.capacity))
	e.uint(uint64(p.m))
	e.uint(uint64(p.efConstruction))
	e.uint(uint64(p.ef))
	e.uint(uint64(g.len()))
	e.int(int64(g.maxLevel))
	e.uint(uint64(g.entry))

	for _, n := range g.nodes {
		e.uint(n.label)
		e.uint(uint64(len(n.links)))
		for _, f := range n.vector {
			e.float(f)
		}
		for _, links := range n.links {
			e.uint(uint64(len(links)))
			for _, l := range links {
				e.uint(uint64(l))
			}
		}
	}
	return e.buf
}

func decodeGraph(body []byte, rng *rand.Rand) (*graph, params, error) {
	d := &decoder{bs: body}
	p := params{
		dim:            int(d.uint()),
		capacity:       int(d.uint()),
		m:              int(d.uint()),
		efConstruction: int(d.uint()),
		ef:             int(d.uint()),
	}
	count := d.uint()
	maxLevel := d.int()
	entry := d.uint()
	if d.err != nil {
		return nil, p, d.err
	}
	if p.dim <= 0 || p.m < 2 || p.efConstruction <= 0 || p.capacity <= 0 {
		return nil, p, fmt.Errorf("invalid header values dim=%d m=%d efc=%d capacity=%d", p.dim, p.m, p.efConstruction, p.capacity)
	}
	// Each node needs at least its vector bytes.
	if count > uint64(p.capacity) || count*uint64(p.dim)*4 > d.remaining() {
		return nil, p, fmt.Errorf("node count %d does not fit", count)
	}
	if (count == 0) != (maxLevel < 0) || (count > 0 && entry >= count) {
		return nil, p, fmt.Errorf("inconsistent entry point %d at level %d", entry, maxLevel)
	}

	g := newGraph(p.dim, p.capacity, p.m, p.efConstruction, rng)
	g.nodes = make([]node, 0, count)
	g.maxLevel = int(maxLevel)
	g.entry = uint32(entry)

	for i := uint64(0); i < count; i++ {
		n := node{label: d.uint()}
		levels := d.uint()
		if d.err == nil && (levels == 0 || levels > d.remaining()) {
			return nil, p, fmt.Errorf("node %d has %d levels", i, levels)
		}
		n.vector = make([]float32, p.dim)
		for j := range n.vector {
			n.vector[j] = d.float()
		}
		n.links = make([][]uint32, levels)
		for l := range n.links {
			size := d.uint()
			if d.err != nil {
				break
			}
			if size > d.remaining() {
				return nil, p, fmt.Errorf("node %d layer %d has %d links", i, l, size)
			}
			links := make([]uint32, size)
			for k := range links {
				id := d.uint()
				if id >= count {
					return nil, p, fmt.Errorf("node %d links to missing node %d", i, id)
				}
				links[k] = uint32(id)
			}
			n.links[l] = links
		}
		if d.err != nil {
			return nil, p, d.err
		}
		if _, dup := g.labels[n.label]; dup {
			return nil, p, fmt.Errorf("duplicate label %d", n.label)
		}
		g.labels[n.label] = uint32(i)
		g.nodes = append(g.nodes, n)
	}

	if d.err != nil {
		return nil, p, d.err
	}
	if d.off != len(body) {
		return nil, p, fmt.Errorf("%d trailing bytes", len(body)-d.off)
	}
	if count > 0 && len(g.nodes[g.entry].links)-1 != g.maxLevel {
		return nil, p, fmt.Errorf("entry point level does not match max level %d", g.maxLevel)
	}
	// Links may point forward, so levels are checked once every node is read.
	for i, n := range g.nodes {
		if len(n.links)-1 > g.maxLevel {
			return nil, p, fmt.Errorf("node %d is above max level %d", i, g.maxLevel)
		}
		for l, links := range n.links {
			for _, id := range links {
				if len(g.nodes[id].links) <= l {
					return nil, p, fmt.Errorf("node %d layer %d links to node %d below that layer", i, l, id)
				}
			}
		}
	}
	return g, p, nil
}

func checksum(data []byte) []byte {
	h, _ := blake2b.New(checksumSize, nil)
	h.Write(data)
	return h.Sum(nil)
}

// writeFile persists the graph atomically: temp file, fsync, rename.
func writeFile(path string, g *graph, p params, c Compression) error {
	body, err := compress(c, encodeGraph(g, p))
	if err != nil {
		return fmt.Errorf("compress index: %w", err)
	}

	out := make([]byte, 0, headerSize+len(body)+checksumSize)
	out = append(out, fileMagic...)
	out = append(out, fileVersion, byte(c))
	out = append(out, body...)
	out = append(out, checksum(out)...)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// readFile loads a persisted graph. A missing file returns an error matching
// os.ErrNotExist; every other defect is ErrCorruptIndex.
func readFile(path string, rng *rand.Rand) (*graph, params, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, params{}, err
	}
	if err != nil {
		return nil, params{}, fmt.Errorf("%w: %w", ErrCorruptIndex, err)
	}

	if len(data) < headerSize+checksumSize {
		return nil, params{}, fmt.Errorf("%w: file too short (%d bytes)", ErrCorruptIndex, len(data))
	}
	if string(data[:len(fileMagic)]) != fileMagic {
		return nil, params{}, fmt.Errorf("%w: bad magic", ErrCorruptIndex)
	}
	if v := data[len(fileMagic)]; v != fileVersion {
		return nil, params{}, fmt.Errorf("%w: unsupported version %d", ErrCorruptIndex, v)
	}

	split := len(data) - checksumSize
	if !bytes.Equal(checksum(data[:split]), data[split:]) {
		return nil, params{}, fmt.Errorf("%w: checksum mismatch", ErrCorruptIndex)
	}

	body, err := decompress(Compression(data[len(fileMagic)+1]), data[headerSize:split])
	if err != nil {
		return nil, params{}, err
	}

	g, p, err := decodeGraph(body, rng)
	if err != nil {
		if errors.Is(err, ErrCorruptIndex) {
			return nil, p, err
		}
		return nil, p, fmt.Errorf("%w: %w", ErrCorruptIndex, err)
	}
	return g, p, nil
}
