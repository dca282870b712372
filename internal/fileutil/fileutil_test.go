package fileutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"caddis/internal/fileutil"
	"caddis/internal/testsupport"
)

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.dxf")
	dst := filepath.Join(dir, "dst.dxf")
	testsupport.WriteFile(t, src, 4096)

	if err := fileutil.CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile: %v", err)
	}
	want, _ := os.ReadFile(src)
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read dst: %v", err)
	}
	if string(got) != string(want) {
		t.Fatal("copied content differs from source")
	}
}

func TestCopyFileMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := fileutil.CopyFile(filepath.Join(dir, "missing"), filepath.Join(dir, "dst"))
	if err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestCopyFileVerified(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.dxf")
	dst := filepath.Join(dir, "dst.dxf")
	testsupport.WriteFile(t, src, 64*1024)

	if err := fileutil.CopyFileVerified(src, dst); err != nil {
		t.Fatalf("CopyFileVerified: %v", err)
	}
	srcInfo, _ := os.Stat(src)
	dstInfo, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("stat dst: %v", err)
	}
	if srcInfo.Size() != dstInfo.Size() {
		t.Fatalf("size mismatch: %d vs %d", srcInfo.Size(), dstInfo.Size())
	}
}

func TestCopyFileVerifiedMissingSource(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "dst.dxf")
	if err := fileutil.CopyFileVerified(filepath.Join(dir, "missing"), dst); err == nil {
		t.Fatal("expected error for missing source")
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Fatal("destination should not be created for missing source")
	}
}
