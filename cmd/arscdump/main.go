// arscdump decodes an APK's AndroidManifest.xml and/or resources.arsc.
// For a resources.arsc it prints a raw dump, or with -emit writes
// public.xml / values*.xml instead (and, with -publicize, a copy of
// resources.arsc with every entry's public bit set).
package main

import (
	"context"
	"encoding/xml"
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/apktool-go/restable"
)

// The module's sole package is declared as "apkparser" (see go.mod's
// module path vs. package name: the import path was renamed, the
// in-package identifier wasn't, matching how the upstream project did it).

type optsType struct {
	isApk       bool
	isManifest  bool
	isResources bool

	keepBroken    bool
	sharedLibrary bool
	overwrite     bool

	publicize bool
	emitDir   string

	xmlFileName string
}

func main() {
	var opts optsType

	flag.BoolVar(&opts.isApk, "a", false, "The input file is an apk (default if INPUT is *.apk)")
	flag.BoolVar(&opts.isManifest, "m", false, "The input file is an AndroidManifest.xml (default)")
	flag.BoolVar(&opts.isResources, "r", false, "The input is a resources.arsc file (default if INPUT is *.arsc)")
	flag.BoolVar(&opts.keepBroken, "keep-broken", false, "Recover from malformed chunks instead of failing")
	flag.BoolVar(&opts.sharedLibrary, "shared-lib", false, "Treat the table as a shared-library resource table (package id 0)")
	flag.BoolVar(&opts.overwrite, "overwrite", false, "Allow a later sighting of the same (resource, config) pair to replace the first")
	flag.BoolVar(&opts.publicize, "publicize", false, "With -emit, also write a resources.arsc with every resource's public bit set")
	flag.StringVar(&opts.emitDir, "emit", "", "Directory to write public.xml/values*.xml into, instead of printing a raw dump")
	flag.StringVar(&opts.xmlFileName, "f", "AndroidManifest.xml", "Name of the XML file from inside apk to parse")

	flag.Parse()

	if len(flag.Args()) < 1 {
		fmt.Printf("%s [flags] INPUT\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	exitcode := 0
	for i, input := range flag.Args() {
		if i != 0 {
			fmt.Println()
		}
		if len(flag.Args()) != 1 {
			fmt.Println("File:", input)
		}
		if !processInput(input, &opts) {
			exitcode = 1
		}
	}
	os.Exit(exitcode)
}

func sessionOptions(opts *optsType) apkparser.Options {
	return apkparser.Options{
		KeepBroken:    opts.keepBroken,
		SharedLibrary: opts.sharedLibrary,
		Overwrite:     opts.overwrite,
	}
}

func processInput(input string, opts *optsType) bool {
	isApk, isManifest, isResources := opts.isApk, opts.isManifest, opts.isResources
	if !isApk && !isManifest && !isResources {
		switch {
		case strings.HasSuffix(input, ".apk"):
			isApk = true
		case strings.HasSuffix(input, ".arsc"):
			isResources = true
		default:
			isManifest = true
		}
	}

	if isApk {
		return processApk(input, opts)
	}

	f := os.Stdin
	if input != "-" {
		var err error
		f, err = os.Open(input)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return false
		}
		defer f.Close()
	}

	if isManifest {
		enc := xml.NewEncoder(os.Stdout)
		enc.Indent("", "    ")
		if err := apkparser.ParseXml(f, enc, nil); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return false
		}
		fmt.Println()
		return true
	}

	return processResources(f, opts)
}

func processResources(r io.Reader, opts *optsType) bool {
	table, err := apkparser.ParseResourceTableCtx(context.Background(), r, sessionOptions(opts))
	if err != nil && table == nil {
		fmt.Fprintln(os.Stderr, err)
		return false
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}

	if opts.emitDir != "" {
		if err := os.MkdirAll(opts.emitDir, 0o755); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return false
		}
		if opts.publicize {
			patched := table.PublicizeTable()
			if err := ioutil.WriteFile(filepath.Join(opts.emitDir, "resources.arsc"), patched, 0o644); err != nil {
				fmt.Fprintln(os.Stderr, err)
				return false
			}
		}
		return emitAll(table, opts)
	}

	for _, pkg := range table.Packages() {
		fmt.Printf("Package %d: %s\n", pkg.ID, pkg.Name)
		for _, ts := range pkg.TypeSpecs() {
			fmt.Printf("  Type %d: %s (%d entries)\n", ts.ID, ts.Name, ts.EntryCount)
		}
	}
	return true
}

func emitAll(table *apkparser.ResourceTable, opts *optsType) bool {
	if err := os.MkdirAll(opts.emitDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return false
	}

	raw, err := apkparser.EmitPublicXML(table)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return false
	}
	if err := ioutil.WriteFile(filepath.Join(opts.emitDir, "public.xml"), raw, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return false
	}

	for _, pkg := range table.ListMainPackages() {
		docs, err := apkparser.EmitValues(table, pkg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return false
		}
		for _, doc := range docs {
			dirName := "values"
			if q := doc.Config.Canonical(); q != "" {
				dirName = "values-" + q
			}
			dir := filepath.Join(opts.emitDir, dirName)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				fmt.Fprintln(os.Stderr, err)
				return false
			}
			fileName := doc.Bucket + ".xml"
			if err := ioutil.WriteFile(filepath.Join(dir, fileName), doc.XML, 0o644); err != nil {
				fmt.Fprintln(os.Stderr, err)
				return false
			}
		}
	}
	return true
}

func processApk(input string, opts *optsType) bool {
	apkReader, err := apkparser.OpenZip(input)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return false
	}
	defer apkReader.Close()

	enc := xml.NewEncoder(os.Stdout)
	enc.Indent("", "    ")

	parser, reserr := apkparser.NewParser(apkReader, enc)
	if reserr != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to parse resources: %s", reserr.Error())
	}

	if err := parser.ParseXml(opts.xmlFileName); err != nil {
		fmt.Println()
		fmt.Fprintln(os.Stderr, err)
		return false
	}
	fmt.Println()
	return true
}
