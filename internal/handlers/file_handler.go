package handlers

import (
	"io"

	"github.com/gofiber/fiber/v2"
)

func (h *Handler) UploadFile(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "failed to retrieve file"})
	}
	src, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "failed to open file"})
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "failed to read file"})
	}

	contentType := fileHeader.Header.Get("Content-Type")
	f, err := h.Files.Upload(c.Context(), principal(c), c.Params("id"), fileHeader.Filename, contentType, data)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "file uploaded", "file": f})
}

func (h *Handler) ListFiles(c *fiber.Ctx) error {
	files, err := h.Files.List(c.Context(), principal(c), c.Params("id"), c.Query("token"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"files": files})
}

func (h *Handler) GetFile(c *fiber.Ctx) error {
	f, url, err := h.Files.Get(c.Context(), principal(c), c.Params("id"), c.Params("fileId"), c.Query("token"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"file": f, "download_url": url})
}

func (h *Handler) DeleteFile(c *fiber.Ctx) error {
	if err := h.Files.Delete(c.Context(), principal(c), c.Params("id"), c.Params("fileId")); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "file deleted"})
}
