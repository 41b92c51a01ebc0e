package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/kozaktomas/lab-access/internal/access"
	"github.com/kozaktomas/lab-access/internal/constants"
	"github.com/kozaktomas/lab-access/internal/logger"
	"github.com/kozaktomas/lab-access/internal/vision"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Enroll a lab member from a photo",
	Long: `Detect the largest face in a photo and store it as the member's template.

Examples:
  lab-access enroll --lab 1 --first Alice --last Smith --image alice.jpg

  # Keep an existing badge number as the member ID
  lab-access enroll --lab 1 --first Bob --last Jones --image bob.jpg --id 4711`,
	RunE: runEnroll,
}

var enrollDirCmd = &cobra.Command{
	Use:   "enroll-dir",
	Short: "Enroll every photo in a directory",
	Long: `Enroll one member per image file. File names are First_Last.jpg; with more
than two parts the last one is the last name and the rest form the first name.
Failed files are reported at the end and do not stop the import.

Examples:
  lab-access enroll-dir --lab 2 --dir ./photos --concurrency 8`,
	RunE: runEnrollDir,
}

func init() {
	rootCmd.AddCommand(enrollCmd)
	rootCmd.AddCommand(enrollDirCmd)

	enrollCmd.Flags().Int64("lab", 0, "Lab ID (required)")
	enrollCmd.Flags().String("first", "", "First name (required)")
	enrollCmd.Flags().String("last", "", "Last name")
	enrollCmd.Flags().String("image", "", "Enrollment photo (required)")
	enrollCmd.Flags().Int64("id", 0, "Member ID (0 = assign automatically)")
	_ = enrollCmd.MarkFlagRequired("lab")
	_ = enrollCmd.MarkFlagRequired("first")
	_ = enrollCmd.MarkFlagRequired("image")

	enrollDirCmd.Flags().Int64("lab", 0, "Lab ID (required)")
	enrollDirCmd.Flags().String("dir", "", "Directory with First_Last.jpg files (required)")
	enrollDirCmd.Flags().Int("concurrency", constants.DefaultConcurrency, "Number of parallel workers")
	_ = enrollDirCmd.MarkFlagRequired("lab")
	_ = enrollDirCmd.MarkFlagRequired("dir")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	frame, err := readFrameFile(mustGetString(cmd, "image"), "", 0, 0)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	tpl, err := a.svc.Enroll(ctx, access.EnrollRequest{
		MemberID:  mustGetInt64(cmd, "id"),
		FirstName: mustGetString(cmd, "first"),
		LastName:  mustGetString(cmd, "last"),
		LabID:     mustGetInt64(cmd, "lab"),
	}, frame)
	if err != nil {
		if errors.Is(err, vision.ErrNoFaceDetected) {
			return fmt.Errorf("no face found in %s", mustGetString(cmd, "image"))
		}
		return err
	}

	fmt.Printf("Enrolled %s as member %d in lab %d\n", tpl.DisplayName(), tpl.MemberID, tpl.LabID)
	return nil
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true, ".gif": true,
}

// nameFromFile splits "First_Last.jpg" into first and last name.
func nameFromFile(path string) (first, last string, ok bool) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	parts := strings.FieldsFunc(base, func(r rune) bool { return r == '_' })
	switch len(parts) {
	case 0:
		return "", "", false
	case 1:
		return parts[0], "", true
	default:
		return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1], true
	}
}

// listImages returns the image files directly inside dir, sorted by name.
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

type enrollFailure struct {
	file string
	err  error
}

func runEnrollDir(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	labID := mustGetInt64(cmd, "lab")
	concurrency := max(mustGetInt(cmd, "concurrency"), 1)

	files, err := listImages(mustGetString(cmd, "dir"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("No images found")
		return nil
	}

	ctx := context.Background()
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.store.GetLab(ctx, labID); err != nil {
		return fmt.Errorf("lab %d: %w", labID, err)
	}

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Enrolling members"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var (
		successCount int
		failures     []enrollFailure
		mu           sync.Mutex
	)
	fail := func(file string, err error) {
		mu.Lock()
		failures = append(failures, enrollFailure{file: file, err: err})
		mu.Unlock()
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, file := range files {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			defer bar.Add(1)

			first, last, ok := nameFromFile(path)
			if !ok {
				fail(path, errors.New("file name is not First_Last"))
				return
			}
			frame, err := readFrameFile(path, "", 0, 0)
			if err != nil {
				fail(path, err)
				return
			}
			if _, err := a.svc.Enroll(ctx, access.EnrollRequest{
				FirstName: first,
				LastName:  last,
				LabID:     labID,
			}, frame); err != nil {
				fail(path, err)
				return
			}

			mu.Lock()
			successCount++
			mu.Unlock()
		}(file)
	}

	wg.Wait()
	fmt.Println()

	fmt.Printf("\nCompleted: %d enrolled, %d failed\n", successCount, len(failures))
	sort.Slice(failures, func(i, j int) bool { return failures[i].file < failures[j].file })
	for _, f := range failures {
		fmt.Printf("  %s: %v\n", filepath.Base(f.file), f.err)
	}
	return nil
}
