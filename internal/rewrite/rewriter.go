// Package rewrite renames resource references inside decompiled XML.
//
// Values are first classified into a Shape; only Qualified and BareTyped
// shapes whose (type, name) matches a rule are touched, and every edit is a
// byte splice through package markup.
package rewrite

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"apkmerge/internal/diff"
	"apkmerge/internal/logging"
	"apkmerge/internal/markup"
	"apkmerge/internal/restable"
)

// AndroidNamespace is the URI of the android: attribute namespace.
const AndroidNamespace = "http://schemas.android.com/apk/res/android"

// Stats summarizes one RewriteTree call.
type Stats struct {
	Scanned       int // documents parsed
	Changed       int // documents written
	Skipped       int // documents that failed to parse
	Substitutions int // references renamed
	ForeignPrefix int // documents binding the android namespace to another prefix
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Scanned += o.Scanned
	s.Changed += o.Changed
	s.Skipped += o.Skipped
	s.Substitutions += o.Substitutions
	s.ForeignPrefix += o.ForeignPrefix
}

// Rewriter applies rule sets to trees.
type Rewriter struct {
	logger  *zap.Logger
	diff    *diff.Engine
	verbose bool
}

// Option configures a Rewriter.
type Option func(*Rewriter)

// WithDiffTrace logs a unified diff of every rewritten document at debug level.
func WithDiffTrace(enabled bool) Option {
	return func(r *Rewriter) {
		r.verbose = enabled
	}
}

// New creates a Rewriter.
func New(logger *zap.Logger, opts ...Option) *Rewriter {
	r := &Rewriter{
		logger: logging.For(logger, logging.CategoryRewrite),
		diff:   diff.NewEngine(2),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RewriteTree rewrites every XML document under treeRoot/res. The
// declaration table itself is left alone; it is maintained by restable.
func (r *Rewriter) RewriteTree(ctx context.Context, treeRoot string, rules *RuleSet) (Stats, error) {
	var stats Stats
	if rules.Len() == 0 {
		return stats, nil
	}

	timer := logging.StartTimer(r.logger, "rewrite "+filepath.Base(treeRoot))
	defer timer.Stop()

	androidPrefix := r.manifestAndroidPrefix(treeRoot)

	docs, err := listDocuments(treeRoot)
	if err != nil {
		return stats, err
	}

	for _, rel := range docs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		full := filepath.Join(treeRoot, filepath.FromSlash(rel))
		src, err := os.ReadFile(full)
		if err != nil {
			return stats, err
		}

		res, err := r.rewrite(rel, src, rules)
		if err != nil {
			r.logger.Warn("skipping unparseable document", zap.String("path", rel), zap.Error(err))
			stats.Skipped++
			continue
		}
		stats.Scanned++

		if res.prefix != "" && androidPrefix != "" && res.prefix != androidPrefix {
			r.logger.Warn("document binds the android namespace to an unexpected prefix",
				zap.String("path", rel), zap.String("prefix", res.prefix), zap.String("manifest_prefix", androidPrefix))
			stats.ForeignPrefix++
		}

		if res.count == 0 {
			continue
		}

		info, err := os.Stat(full)
		if err != nil {
			return stats, err
		}
		if err := os.WriteFile(full, res.out, info.Mode().Perm()); err != nil {
			return stats, err
		}
		stats.Changed++
		stats.Substitutions += res.count

		r.logger.Debug("rewrote document", zap.String("path", rel), zap.Int("substitutions", res.count))
		if r.verbose {
			r.logger.Debug("rewrite diff\n" + r.diff.Compute(rel, string(src), string(res.out)).Unified())
		}
	}

	r.logger.Info("tree rewritten",
		zap.String("tree", filepath.Base(treeRoot)),
		zap.Int("rules", rules.Len()),
		zap.Int("documents", stats.Changed),
		zap.Int("substitutions", stats.Substitutions),
		zap.Int("skipped", stats.Skipped))
	return stats, nil
}

// RewriteDocument applies rules to one document. relPath is slash-separated
// and relative to the tree root. It returns the new bytes and the number of
// substitutions; with zero substitutions the source is returned unchanged.
func (r *Rewriter) RewriteDocument(relPath string, src []byte, rules *RuleSet) ([]byte, int, error) {
	res, err := r.rewrite(relPath, src, rules)
	if err != nil {
		return nil, 0, err
	}
	return res.out, res.count, nil
}

type docResult struct {
	out    []byte
	count  int
	prefix string // prefix bound to the android namespace, if any
}

func (r *Rewriter) rewrite(relPath string, src []byte, rules *RuleSet) (docResult, error) {
	doc, err := markup.Parse(src)
	if err != nil {
		return docResult{}, err
	}

	res := docResult{out: src}
	res.prefix, _ = doc.PrefixFor(AndroidNamespace)

	valuesDoc := isValuesDocument(relPath)
	for _, el := range doc.Elements {
		for _, a := range el.Attrs {
			shape := ClassifyAttr(el, a, valuesDoc)
			if shape.Kind == Unrelated {
				continue
			}
			to, ok := rules.Lookup(shape.Type, shape.Name)
			if !ok {
				continue
			}
			spliceAttr(doc, a, shape, to)
			res.count++
		}
		for _, t := range el.Texts {
			shape := ClassifyText(t)
			if shape.Kind == Unrelated {
				continue
			}
			to, ok := rules.Lookup(shape.Type, shape.Name)
			if !ok {
				continue
			}
			spliceText(doc, t, shape, to)
			res.count++
		}
	}

	if res.count == 0 {
		return res, nil
	}
	out, err := doc.Bytes()
	if err != nil {
		return docResult{}, err
	}
	res.out = out
	return res, nil
}

// spliceAttr replaces only the name inside the raw attribute value when the
// reference appears verbatim, otherwise re-escapes the whole value.
func spliceAttr(doc *markup.Document, a *markup.Attr, s Shape, to string) {
	raw := doc.Raw(a.ValueSpan)
	if off, ok := locate(raw, a.Value, s); ok {
		at := a.ValueSpan.Start + off
		doc.ReplaceSpan(markup.Span{Start: at, End: at + len(s.Name)}, markup.EscapeAttr(to, a.Quote))
		return
	}
	doc.SetAttrValue(a, s.Replace(a.Value, to))
}

func spliceText(doc *markup.Document, t *markup.Text, s Shape, to string) {
	raw := doc.Raw(t.Span)
	if off, ok := locate(raw, t.Value, s); ok {
		at := t.Span.Start + off
		repl := to
		if !t.CDATA {
			repl = markup.EscapeText(to)
		}
		doc.ReplaceSpan(markup.Span{Start: at, End: at + len(s.Name)}, repl)
		return
	}
	value := s.Replace(t.Value, to)
	if t.CDATA {
		doc.ReplaceSpan(t.Span, "<![CDATA["+value+"]]>")
		return
	}
	doc.ReplaceSpan(t.Span, markup.EscapeText(value))
}

// locate finds the byte offset of the shape's name inside the raw bytes.
func locate(raw, value string, s Shape) (int, bool) {
	tok := s.Token(value)
	i := strings.Index(raw, tok)
	if i < 0 {
		return 0, false
	}
	return i + (s.NameStart - s.TokenStart), true
}

// isValuesDocument reports whether relPath lives in res/values or a
// qualified variant such as res/values-de.
func isValuesDocument(relPath string) bool {
	dir := path.Base(path.Dir(relPath))
	return path.Dir(path.Dir(relPath)) == "res" && (dir == "values" || strings.HasPrefix(dir, "values-"))
}

// listDocuments returns the slash-separated paths of res/**/*.xml, sorted.
func listDocuments(treeRoot string) ([]string, error) {
	resDir := filepath.Join(treeRoot, "res")
	var docs []string
	err := filepath.WalkDir(resDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(p), ".xml") {
			return nil
		}
		rel, err := filepath.Rel(treeRoot, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == restable.DeclarationFile {
			return nil
		}
		docs = append(docs, rel)
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sort.Strings(docs)
	return docs, nil
}

// manifestAndroidPrefix reads the android namespace prefix from the tree's
// manifest. Returns "" when the manifest is absent or unparseable.
func (r *Rewriter) manifestAndroidPrefix(treeRoot string) string {
	src, err := os.ReadFile(filepath.Join(treeRoot, "AndroidManifest.xml"))
	if err != nil {
		return ""
	}
	doc, err := markup.Parse(src)
	if err != nil {
		r.logger.Debug("manifest not parseable for namespace lookup", zap.Error(err))
		return ""
	}
	prefix, _ := doc.PrefixFor(AndroidNamespace)
	return prefix
}
