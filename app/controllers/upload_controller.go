package controllers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/frameloft/FrameLoft/app/models"
	"github.com/frameloft/FrameLoft/internal/pkg/accountcontext"
	"github.com/frameloft/FrameLoft/internal/pkg/database"
	"github.com/frameloft/FrameLoft/internal/pkg/objectstore"
	"github.com/frameloft/FrameLoft/internal/pkg/quota"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

var store objectstore.Store

// SetObjectStore wires the object store used by the upload and delete
// handlers. Must be called once during startup.
func SetObjectStore(s objectstore.Store) {
	store = s
}

// HandleAssetUpload admits a multipart upload against the account's storage
// quota. The reservation happens before the bytes go anywhere; every failure
// path after the reservation releases it again so usage never drifts.
func HandleAssetUpload(c *fiber.Ctx) error {
	ac := accountcontext.Get(c)
	if !ac.IsAuthenticated {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "account_required"})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_file"})
	}
	kind := strings.TrimSpace(c.FormValue("kind"))
	if kind == "" {
		kind = models.ObjectKindPhoto
	}
	if !models.IsValidObjectKind(kind) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_kind"})
	}
	if fileHeader.Size <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "empty_file"})
	}

	svc := quota.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	reservation, err := svc.TryReserve(ctx, ac.AccountID, fileHeader.Size)
	if err != nil {
		if errors.Is(err, quota.ErrQuotaExceeded) {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "quota_exceeded"})
		}
		log.Errorf("[Upload] Reservation for account %d failed: %v", ac.AccountID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "reservation_failed"})
	}

	data, contentType, err := readUpload(fileHeader)
	if err != nil {
		releaseOrLog(ctx, svc, reservation)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unreadable_file"})
	}

	objectUUID := uuid.New().String()
	key := objectstore.ObjectKey(kind, ac.AccountID, objectUUID, filepath.Ext(fileHeader.Filename))

	if err := store.Put(ctx, key, data, contentType); err != nil {
		releaseOrLog(ctx, svc, reservation)
		log.Errorf("[Upload] Storing object %s failed: %v", key, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "store_failed"})
	}

	object := models.StorageObject{
		UUID:      objectUUID,
		AccountID: ac.AccountID,
		Kind:      kind,
		SizeBytes: fileHeader.Size,
		ObjectKey: key,
		FileName:  fileHeader.Filename,
	}
	if err := database.GetDB().Create(&object).Error; err != nil {
		// The bytes are stored but untracked; undo both sides.
		if delErr := store.Delete(ctx, key); delErr != nil {
			log.Errorf("[Upload] Orphan cleanup for %s failed: %v", key, delErr)
		}
		releaseOrLog(ctx, svc, reservation)
		log.Errorf("[Upload] Recording object %s failed: %v", objectUUID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "record_failed"})
	}

	svc.Commit(reservation)
	invalidateUsageCache(ac.AccountID)
	log.Infof("[Upload] Account %d stored %s (%d bytes) as %s", ac.AccountID, kind, fileHeader.Size, objectUUID)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"uuid": objectUUID,
		"kind": kind,
		"size": fileHeader.Size,
	})
}

// HandleAssetDelete removes an object and credits its size back to the
// account. The ledger is only credited after the object store confirms the
// delete; a failed delete leaves usage untouched.
func HandleAssetDelete(c *fiber.Ctx) error {
	ac := accountcontext.Get(c)
	if !ac.IsAuthenticated {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "account_required"})
	}

	objectUUID := c.Params("uuid")
	object, err := models.FindStorageObjectByUUID(database.GetDB(), objectUUID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
	}
	if object.AccountID != ac.AccountID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := store.Delete(ctx, object.ObjectKey); err != nil {
		log.Errorf("[Upload] Deleting object %s failed: %v", object.ObjectKey, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "delete_failed"})
	}

	if err := database.GetDB().Delete(&object).Error; err != nil {
		log.Errorf("[Upload] Removing record for %s failed: %v", object.UUID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "record_failed"})
	}

	svc := quota.NewServiceFromDB(database.GetDB())
	if err := svc.Release(ctx, ac.AccountID, object.SizeBytes); err != nil {
		log.Errorf("[Upload] Releasing %d bytes for account %d failed: %v", object.SizeBytes, ac.AccountID, err)
	}
	invalidateUsageCache(ac.AccountID)
	log.Infof("[Upload] Account %d deleted %s (%d bytes)", ac.AccountID, object.UUID, object.SizeBytes)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// releaseOrLog undoes a reservation after a failed upload. A failed release
// leaves storage_used overstated until the next successful release, so it
// must never disappear silently.
func releaseOrLog(ctx context.Context, svc *quota.Service, res *quota.Reservation) {
	if err := svc.ReleaseReservation(ctx, res); err != nil {
		log.Errorf("[Upload] Releasing reservation %s (%d bytes) for account %d failed: %v",
			res.ID, res.Bytes, res.AccountID, err)
	}
}

func readUpload(fileHeader *multipart.FileHeader) ([]byte, string, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", err
	}
	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}
