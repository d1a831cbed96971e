package flathill

import (
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	stagingDirName   = "_new"
	thumbsDirName    = "thumbs"
	thumbWidth       = 200
	thumbJPEGQuality = 80
)

var allowedImageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

type uploadResponse struct {
	Success  bool   `json:"success"`
	Filename string `json:"filename,omitempty"`
	URL      string `json:"url,omitempty"`
	Error    string `json:"error,omitempty"`
}

type imageEntry struct {
	Filename     string `json:"filename"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url"`
}

type imageListResponse struct {
	Success bool         `json:"success"`
	Images  []imageEntry `json:"images"`
	Error   string       `json:"error,omitempty"`
}

// authorizeAPI gates image API calls: a session is required, plus one of the
// content type's declared roles (admin when the type declares none).
func (a *App) authorizeAPI(c echo.Context, contentType string) (int, string) {
	user := a.currentUser(c)
	if user == nil {
		return http.StatusUnauthorized, "login required"
	}
	roles := []string{"admin"}
	if cfg, ok := a.Config.ContentTypes[contentType]; ok && len(cfg.Roles) > 0 {
		roles = cfg.Roles
	}
	if !user.HasAnyRole(roles) {
		return http.StatusForbidden, "insufficient role"
	}
	return http.StatusOK, ""
}

// handleImageUpload accepts one multipart image for a content record. Images
// for unsaved records land in the _new staging directory and are migrated to
// the record's id directory on first save.
func (a *App) handleImageUpload(c echo.Context) error {
	contentType := c.FormValue("content_type")
	if contentType == "" {
		return c.JSON(http.StatusBadRequest, uploadResponse{Error: "content_type is required"})
	}
	if status, msg := a.authorizeAPI(c, contentType); status != http.StatusOK {
		return c.JSON(status, uploadResponse{Error: msg})
	}

	dirID := c.FormValue("content_id")
	if dirID == "" {
		dirID = stagingDirName
	}

	file, err := c.FormFile("filepond")
	if err != nil {
		return c.JSON(http.StatusBadRequest, uploadResponse{Error: "no file provided"})
	}
	if file.Size > a.Config.MaxUploadSize {
		return c.JSON(http.StatusBadRequest, uploadResponse{Error: "file too large"})
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedImageExts[ext] {
		return c.JSON(http.StatusBadRequest, uploadResponse{Error: "unsupported file type"})
	}

	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dir := a.Store.imagesDir(contentType, dirID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create images dir: %w", err)
	}

	filename := uniqueImageName(dir, file.Filename)
	dst, err := os.Create(filepath.Join(dir, filename))
	if err != nil {
		return fmt.Errorf("create image: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return fmt.Errorf("write image: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("write image: %w", err)
	}

	return c.JSON(http.StatusOK, uploadResponse{
		Success:  true,
		Filename: filename,
		URL:      imageURLPath(contentType, dirID, filename),
	})
}

// handleImageList lists the images of a content record with lazily built
// thumbnails.
func (a *App) handleImageList(c echo.Context) error {
	contentType := c.QueryParam("content_type")
	if contentType == "" {
		return c.JSON(http.StatusBadRequest, imageListResponse{Error: "content_type is required"})
	}
	if status, msg := a.authorizeAPI(c, contentType); status != http.StatusOK {
		return c.JSON(status, imageListResponse{Error: msg})
	}

	dirID := c.QueryParam("content_id")
	if dirID == "" {
		dirID = stagingDirName
	}

	dir := a.Store.imagesDir(contentType, dirID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return c.JSON(http.StatusOK, imageListResponse{Success: true, Images: []imageEntry{}})
		}
		return fmt.Errorf("read images dir: %w", err)
	}

	images := []imageEntry{}
	for _, entry := range entries {
		if entry.IsDir() || !allowedImageExts[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		item := imageEntry{
			Filename: entry.Name(),
			URL:      imageURLPath(contentType, dirID, entry.Name()),
		}
		if thumb, err := a.ensureThumbnail(dir, entry.Name()); err == nil {
			item.ThumbnailURL = imageURLPath(contentType, dirID, thumbsDirName+"/"+thumb)
		} else {
			a.debugLog("api_list_images", "thumbnail failed", entry.Name(), err)
			item.ThumbnailURL = item.URL
		}
		images = append(images, item)
	}
	sort.Slice(images, func(i, j int) bool { return images[i].Filename < images[j].Filename })

	return c.JSON(http.StatusOK, imageListResponse{Success: true, Images: images})
}

func imageURLPath(contentType, dirID, filename string) string {
	return "/content/" + contentType + "/images/" + dirID + "/" + filename
}

// uniqueImageName slugifies the base name and appends a counter while the
// candidate name is taken in dir.
func uniqueImageName(dir, original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	base := Slugify(strings.TrimSuffix(filepath.Base(original), filepath.Ext(original)))
	if base == "" {
		base = "image"
	}

	candidate := base + ext
	counter := 1
	for {
		if _, err := os.Stat(filepath.Join(dir, candidate)); os.IsNotExist(err) {
			return candidate
		}
		counter++
		candidate = fmt.Sprintf("%s-%d%s", base, counter, ext)
	}
}

// ensureThumbnail returns the thumbnail filename for an image, generating it
// under the thumbs subdirectory when missing or stale.
func (a *App) ensureThumbnail(dir, filename string) (string, error) {
	thumbName := strings.TrimSuffix(filename, filepath.Ext(filename)) + ".jpg"
	thumbPath := filepath.Join(dir, thumbsDirName, thumbName)
	srcPath := filepath.Join(dir, filename)

	srcInfo, err := os.Stat(srcPath)
	if err != nil {
		return "", err
	}
	if thumbInfo, err := os.Stat(thumbPath); err == nil && !thumbInfo.ModTime().Before(srcInfo.ModTime()) {
		return thumbName, nil
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	img, _, err := image.Decode(src)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > thumbWidth {
		newH := h * thumbWidth / w
		dst := image.NewRGBA(image.Rect(0, 0, thumbWidth, newH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
	}

	if err := os.MkdirAll(filepath.Join(dir, thumbsDirName), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(thumbPath)
	if err != nil {
		return "", err
	}
	if err := jpeg.Encode(out, img, &jpeg.Options{Quality: thumbJPEGQuality}); err != nil {
		out.Close()
		os.Remove(thumbPath)
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}
	return thumbName, out.Close()
}
