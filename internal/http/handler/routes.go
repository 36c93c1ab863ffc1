package handler

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"meshapi/internal/service"
)

// ExportFilenameHeader names the stored export artifact in a conversion response.
const ExportFilenameHeader = "X-Export-Filename"

const healthTimeout = 2 * time.Second

// Pinger is a dependency the health endpoint checks. *sql.DB and storage.Storage satisfy it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type uploadResponse struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
}

type healthResponse struct {
	Status string `json:"status"`
}

var (
	errNoFilePart     = errors.New("no file part")
	errNoSelectedFile = errors.New("no selected file")
)

// RegisterRoutes attaches HTTP routes to the provided Fiber app. Mesh routes are
// mounted under prefix ("" for bare paths); probes stay at the root.
func RegisterRoutes(app *fiber.App, prefix string, svc service.MeshService, deps ...Pinger) {
	app.Get("/health", HealthCheck(deps...))
	app.Get("/healthz", LivenessProbe())

	api := app.Group(prefix)
	api.Post("/upload", UploadModel(svc))
	api.Get("/models", ListModels(svc))
	api.Get("/models/:filename", GetModel(svc))
	api.Post("/export", ExportModel(svc))
}

// HealthCheck pings every dependency and answers 503 on the first failure.
func HealthCheck(deps ...Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
		defer cancel()
		for _, d := range deps {
			if d == nil {
				continue
			}
			if err := d.PingContext(ctx); err != nil {
				slog.WarnContext(ctx, "health_check_failed",
					"request_id", requestIDFromCtx(c),
					"error", err.Error(),
				)
				return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
			}
		}
		return c.Status(fiber.StatusOK).JSON(healthResponse{Status: "healthy"})
	}
}

func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// UploadModel godoc
// @Summary      Upload a mesh
// @Description  Stores an STL or OBJ file under a generated name.
// @Tags         models
// @Accept       multipart/form-data
// @Produce      json
// @Param        file  formData  file  true  "Mesh file (.stl or .obj)"
// @Success      200   {object}  uploadResponse
// @Failure      400   {object}  errorPayload
// @Failure      413   {object}  errorPayload
// @Failure      500   {object}  errorPayload
// @Router       /upload [post]
func UploadModel(svc service.MeshService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, _, err := formFile(c, "file")
		switch {
		case errors.Is(err, errNoFilePart):
			return writeError(c, fiber.StatusBadRequest, "NO_FILE_PART", service.MsgNoFilePart)
		case errors.Is(err, errNoSelectedFile):
			return writeError(c, fiber.StatusBadRequest, "NO_SELECTED_FILE", service.MsgNoSelectedFile)
		}

		f, err := fh.Open()
		if err != nil {
			return writeServiceError(c, err)
		}
		defer f.Close()

		mf, err := svc.Upload(c.UserContext(), f, fh.Filename, fh.Size)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusOK).JSON(uploadResponse{
			Message:  "File uploaded successfully",
			Filename: mf.Filename,
		})
	}
}

// GetModel godoc
// @Summary      Download a stored mesh
// @Tags         models
// @Produce      application/octet-stream
// @Param        filename  path  string  true  "Stored filename"
// @Success      200
// @Failure      404  {object}  errorPayload
// @Router       /models/{filename} [get]
func GetModel(svc service.MeshService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rc, info, err := svc.Retrieve(c.UserContext(), c.Params("filename"))
		if err != nil {
			return writeServiceError(c, err)
		}

		size := int(info.Size)
		if size <= 0 {
			size = -1
		}
		c.Set(fiber.HeaderContentType, info.ContentType)
		// fasthttp closes rc once the body is written.
		return c.SendStream(rc, size)
	}
}

// ExportModel godoc
// @Summary      Convert a mesh
// @Description  Converts between STL and OBJ and returns the result as an attachment.
// @Tags         models
// @Accept       multipart/form-data
// @Produce      application/octet-stream
// @Param        file        formData  file    true  "Mesh file"
// @Param        fromFormat  formData  string  true  "Source format (stl, obj)"
// @Param        toFormat    formData  string  true  "Target format (stl, obj)"
// @Success      200
// @Header       200  {string}  X-Export-Filename  "Stored export artifact"
// @Failure      400  {object}  errorPayload
// @Failure      413  {object}  errorPayload
// @Failure      500  {object}  errorPayload
// @Router       /export [post]
func ExportModel(svc service.MeshService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, form, err := formFile(c, "file")
		if errors.Is(err, errNoFilePart) {
			return writeError(c, fiber.StatusBadRequest, "NO_FILE_PART", service.MsgNoFilePart)
		}
		from, to := formValue(form, "fromFormat"), formValue(form, "toFormat")
		if err != nil || from == "" || to == "" {
			return writeError(c, fiber.StatusBadRequest, "MISSING_INFORMATION", service.MsgMissingInfo)
		}

		f, err := fh.Open()
		if err != nil {
			return writeServiceError(c, err)
		}
		defer f.Close()

		res, err := svc.Convert(c.UserContext(), f, fh.Filename, fh.Size, from, to)
		if err != nil {
			return writeServiceError(c, err)
		}

		c.Attachment(res.Filename)
		c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
		c.Set(ExportFilenameHeader, res.StoredAs)
		return c.Status(fiber.StatusOK).Send(res.Data)
	}
}

// ListModels godoc
// @Summary      List indexed models
// @Tags         models
// @Produce      json
// @Param        limit   query  int  false  "Page size"  default(10)
// @Param        offset  query  int  false  "Offset"     default(0)
// @Success      200  {object}  service.ModelListResult
// @Failure      400  {object}  errorPayload
// @Router       /models [get]
func ListModels(svc service.MeshService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := svc.List(c.UserContext(), limit, offset)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// formFile returns the named file part. A part sent without a filename is parsed
// as a plain form value, which is how an empty file input arrives.
func formFile(c *fiber.Ctx, field string) (*multipart.FileHeader, *multipart.Form, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, nil, errNoFilePart
	}
	if files := form.File[field]; len(files) > 0 {
		if files[0].Filename == "" {
			return nil, form, errNoSelectedFile
		}
		return files[0], form, nil
	}
	if _, ok := form.Value[field]; ok {
		return nil, form, errNoSelectedFile
	}
	return nil, form, errNoFilePart
}

func formValue(form *multipart.Form, key string) string {
	if form == nil {
		return ""
	}
	if v := form.Value[key]; len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}
