// Package jar merges a client jar and a server jar into one unified jar.
//
// Entries are paired by path. Classes present on both sides go through the
// member-level merge; classes present on one side are tagged as a whole with
// that side's marker. Resources prefer the client copy. The output entry
// order is the order-preserving merge of the two input orders, so repeated
// runs over the same inputs produce identical jars.
package jar

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/sidemerge/sidemerge"
	"github.com/sidemerge/sidemerge/classfile"
)

// Stats summarizes one jar merge.
type Stats struct {
	MergedClasses int // classes present on both sides
	ClientClasses int // classes tagged CLIENT-only
	ServerClasses int // classes tagged SERVER-only
	Resources     int
}

type entryKind uint8

const (
	kindMergedClass entryKind = iota
	kindClientClass
	kindServerClass
	kindResource
)

type result struct {
	kind entryKind
	data []byte
}

// Merge merges the jars at clientPath and serverPath into outPath.
// Per-class merges run on a bounded worker pool; the first failure cancels
// the rest and no output file is left behind.
func Merge(ctx context.Context, clientPath, serverPath, outPath string, opts ...Option) (Stats, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	log := options.Logger

	clientZip, err := zip.OpenReader(clientPath)
	if err != nil {
		return Stats{}, fmt.Errorf("open client jar: %w", err)
	}
	defer clientZip.Close()

	serverZip, err := zip.OpenReader(serverPath)
	if err != nil {
		return Stats{}, fmt.Errorf("open server jar: %w", err)
	}
	defer serverZip.Close()

	clientEntries := indexEntries(&clientZip.Reader)
	serverEntries := indexEntries(&serverZip.Reader)
	names := sidemerge.MergePreserveOrder(clientEntries.names, serverEntries.names)

	merger := sidemerge.NewMerger()
	results := make([]result, len(names))

	p := pool.New().WithMaxGoroutines(options.Workers).WithContext(ctx).WithCancelOnError()
	for i, name := range names {
		clientFile := clientEntries.byName[name]
		serverFile := serverEntries.byName[name]

		p.Go(func(ctx context.Context) error {
			res, err := mergeEntry(merger, name, clientFile, serverFile, log)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return Stats{}, err
	}

	stats, err := writeJar(outPath, names, results, options.Level)
	if err != nil {
		return Stats{}, err
	}

	log.Info("jar merge complete",
		zap.String("output", outPath),
		zap.Int("merged_classes", stats.MergedClasses),
		zap.Int("client_classes", stats.ClientClasses),
		zap.Int("server_classes", stats.ServerClasses),
		zap.Int("resources", stats.Resources))
	return stats, nil
}

func mergeEntry(merger *sidemerge.Merger, name string, clientFile, serverFile *zip.File, log *zap.Logger) (result, error) {
	isClass := strings.HasSuffix(name, ".class")

	switch {
	case clientFile != nil && serverFile != nil && isClass:
		dataClient, err := readEntry(clientFile)
		if err != nil {
			return result{}, fmt.Errorf("read client %s: %w", name, err)
		}
		dataServer, err := readEntry(serverFile)
		if err != nil {
			return result{}, fmt.Errorf("read server %s: %w", name, err)
		}

		nodeClient, err := classfile.Parse(dataClient)
		if err != nil {
			return result{}, fmt.Errorf("decode client %s: %w", name, err)
		}
		nodeServer, err := classfile.Parse(dataServer)
		if err != nil {
			return result{}, fmt.Errorf("decode server %s: %w", name, err)
		}

		merged, report := merger.MergeClasses(nodeClient, nodeServer)
		if len(report.ClientInterfaces) > 0 || len(report.ServerInterfaces) > 0 {
			log.Debug("one-sided interfaces",
				zap.String("class", name),
				zap.Strings("client_only", report.ClientInterfaces),
				zap.Strings("server_only", report.ServerInterfaces))
		}

		data, err := merged.Encode()
		if err != nil {
			return result{}, fmt.Errorf("encode %s: %w", name, err)
		}
		return result{kind: kindMergedClass, data: data}, nil

	case isClass:
		side := sidemerge.SideClient
		kind := kindClientClass
		file := clientFile
		if file == nil {
			side = sidemerge.SideServer
			kind = kindServerClass
			file = serverFile
		}

		data, err := readEntry(file)
		if err != nil {
			return result{}, fmt.Errorf("read %s: %w", name, err)
		}
		node, err := classfile.Parse(data)
		if err != nil {
			return result{}, fmt.Errorf("decode %s: %w", name, err)
		}
		sidemerge.AnnotateSide(node, side)
		out, err := node.Encode()
		if err != nil {
			return result{}, fmt.Errorf("encode %s: %w", name, err)
		}
		log.Debug("one-sided class", zap.String("class", name), zap.Stringer("side", side))
		return result{kind: kind, data: out}, nil

	default:
		file := clientFile
		if file == nil {
			file = serverFile
		}
		data, err := readEntry(file)
		if err != nil {
			return result{}, fmt.Errorf("read %s: %w", name, err)
		}
		return result{kind: kindResource, data: data}, nil
	}
}

func writeJar(outPath string, names []string, results []result, level int) (Stats, error) {
	out, err := os.Create(outPath)
	if err != nil {
		return Stats{}, fmt.Errorf("create output jar: %w", err)
	}
	fail := func(err error) (Stats, error) {
		out.Close()
		os.Remove(outPath)
		return Stats{}, err
	}

	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, level)
	})

	var stats Stats
	for i, name := range names {
		res := results[i]
		switch res.kind {
		case kindMergedClass:
			stats.MergedClasses++
		case kindClientClass:
			stats.ClientClasses++
		case kindServerClass:
			stats.ServerClasses++
		case kindResource:
			stats.Resources++
		}

		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
		if err != nil {
			return fail(fmt.Errorf("create entry %s: %w", name, err))
		}
		if _, err := w.Write(res.data); err != nil {
			return fail(fmt.Errorf("write entry %s: %w", name, err))
		}
	}

	if err := zw.Close(); err != nil {
		return fail(fmt.Errorf("finish output jar: %w", err))
	}
	if err := out.Close(); err != nil {
		os.Remove(outPath)
		return Stats{}, fmt.Errorf("close output jar: %w", err)
	}
	return stats, nil
}

type entryIndex struct {
	names  []string
	byName map[string]*zip.File
}

func indexEntries(r *zip.Reader) entryIndex {
	idx := entryIndex{byName: make(map[string]*zip.File, len(r.File))}
	for _, f := range r.File {
		if strings.HasSuffix(f.Name, "/") {
			continue // directory entry
		}
		idx.names = append(idx.names, f.Name)
		idx.byName[f.Name] = f
	}
	return idx
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
