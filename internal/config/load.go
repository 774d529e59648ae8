package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// rawConfig mirrors the on-disk file. Pointer fields distinguish "unset"
// from zero values so a child can explicitly clear an inherited flag.
type rawConfig struct {
	Extends         extendsList        `json:"extends"`
	CompilerOptions rawCompilerOptions `json:"compilerOptions"`
	Tool            rawToolOptions     `json:"tsc-alias"`
}

type rawCompilerOptions struct {
	BaseURL        *string             `json:"baseUrl"`
	RootDir        *string             `json:"rootDir"`
	OutDir         *string             `json:"outDir"`
	DeclarationDir *string             `json:"declarationDir"`
	Paths          map[string][]string `json:"paths"`
}

type rawToolOptions struct {
	Replacers            replacerList       `json:"replacers"`
	ResolveFullPaths     *bool              `json:"resolveFullPaths"`
	ResolveFullExtension *string            `json:"resolveFullExtension"`
	Verbose              *bool              `json:"verbose"`
	FileExtensions       *rawFileExtensions `json:"fileExtensions"`
}

type rawFileExtensions struct {
	InputGlob   *string  `json:"inputGlob"`
	OutputCheck []string `json:"outputCheck"`
}

type rawReplacer struct {
	Name    string
	Enabled *bool  `json:"enabled"`
	File    string `json:"file"`
}

// extendsList accepts both "extends": "x" and "extends": ["x", "y"].
type extendsList []string

func (e *extendsList) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*e = nil
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*e = extendsList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("extends must be a string or an array of strings")
	}
	*e = many
	return nil
}

// replacerList keeps object key order, which is the pipeline order.
type replacerList []rawReplacer

func (l *replacerList) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*l = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("replacers must be an object")
	}
	out := replacerList{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := keyTok.(string)
		var r rawReplacer
		if err := dec.Decode(&r); err != nil {
			return fmt.Errorf("replacer %q: %w", name, err)
		}
		r.Name = name
		out = append(out, r)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*l = out
	return nil
}

// layer is one config file with its directory fields already absolute.
type layer struct {
	file string
	dir  string

	extends []string

	baseURL        *string
	rootDir        *string
	outDir         *string
	declarationDir *string
	paths          map[string][]string

	replacers            []ReplacerSetting
	replacersSet         bool
	resolveFullPaths     *bool
	resolveFullExtension *string
	verbose              *bool
	inputGlob            *string
	outputCheck          []string
}

// loadLayer reads and decodes a single configuration file.
func loadLayer(file string) (*layer, error) {
	data, err := os.ReadFile(filepath.FromSlash(file))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: %s: %w", file, ErrConfigNotFound)
		}
		return nil, fmt.Errorf("config: read %s: %w", file, err)
	}
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", file, err)
	}
	var raw rawConfig
	if err := json.Unmarshal(std, &raw); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", file, err)
	}

	dir := filepath.ToSlash(filepath.Dir(filepath.FromSlash(file)))
	l := &layer{
		file:                 file,
		dir:                  dir,
		extends:              raw.Extends,
		paths:                raw.CompilerOptions.Paths,
		resolveFullPaths:     raw.Tool.ResolveFullPaths,
		resolveFullExtension: raw.Tool.ResolveFullExtension,
		verbose:              raw.Tool.Verbose,
	}
	co := raw.CompilerOptions
	l.baseURL = absPtr(dir, co.BaseURL)
	l.rootDir = absPtr(dir, co.RootDir)
	l.outDir = absPtr(dir, co.OutDir)
	l.declarationDir = absPtr(dir, co.DeclarationDir)

	if fe := raw.Tool.FileExtensions; fe != nil {
		l.inputGlob = fe.InputGlob
		l.outputCheck = fe.OutputCheck
	}
	if raw.Tool.Replacers != nil {
		l.replacersSet = true
		for _, r := range raw.Tool.Replacers {
			s := ReplacerSetting{Name: r.Name, Enabled: true}
			if r.Enabled != nil {
				s.Enabled = *r.Enabled
			}
			if r.File != "" {
				s.File = resolveDir(dir, r.File)
			}
			l.replacers = append(l.replacers, s)
		}
	}
	return l, nil
}

func absPtr(dir string, v *string) *string {
	if v == nil {
		return nil
	}
	abs := resolveDir(dir, *v)
	return &abs
}
