package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/recdfyi/recd-server/internal/models"
	"github.com/recdfyi/recd-server/internal/quota"
)

// Mongo implements every store port on a single database handle.
type Mongo struct {
	users     *mongo.Collection
	cds       *mongo.Collection
	files     *mongo.Collection
	tokens    *mongo.Collection
	emailLogs *mongo.Collection
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{
		users:     db.Collection("users"),
		cds:       db.Collection("cds"),
		files:     db.Collection("files"),
		tokens:    db.Collection("share_tokens"),
		emailLogs: db.Collection("email_logs"),
	}
}

// EnsureIndexes creates the unique and lookup indexes the stores rely
// on. Call once at startup.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := m.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
	})
	if err != nil {
		return fmt.Errorf("user indexes: %w", err)
	}
	if _, err := m.cds.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
		{Keys: bson.D{{Key: "is_public", Value: 1}, {Key: "public_at", Value: -1}}},
	}); err != nil {
		return fmt.Errorf("cd indexes: %w", err)
	}
	if _, err := m.files.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "cd_id", Value: 1}},
	}); err != nil {
		return fmt.Errorf("file indexes: %w", err)
	}
	if _, err := m.tokens.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "cd_id", Value: 1}},
	}); err != nil {
		return fmt.Errorf("token indexes: %w", err)
	}
	if _, err := m.emailLogs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "sent_at", Value: -1}},
	}); err != nil {
		return fmt.Errorf("email log indexes: %w", err)
	}
	return nil
}

// --- users ---

func (m *Mongo) CreateUser(ctx context.Context, user models.User) error {
	_, err := m.users.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (m *Mongo) UserByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := m.users.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	return user, mapMongoErr(err)
}

func (m *Mongo) UserByID(ctx context.Context, uid string) (models.User, error) {
	objID, err := primitive.ObjectIDFromHex(uid)
	if err != nil {
		return models.User{}, ErrNotFound
	}
	var user models.User
	err = m.users.FindOne(ctx, bson.M{"_id": objID}).Decode(&user)
	return user, mapMongoErr(err)
}

func (m *Mongo) SetUsername(ctx context.Context, uid, username string) error {
	objID, err := primitive.ObjectIDFromHex(uid)
	if err != nil {
		return ErrNotFound
	}
	res, err := m.users.UpdateOne(ctx, bson.M{"_id": objID}, bson.M{"$set": bson.M{"username": username}})
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// --- cds ---

func (m *Mongo) CreateCD(ctx context.Context, cd models.CD) error {
	_, err := m.cds.InsertOne(ctx, cd)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (m *Mongo) CDByID(ctx context.Context, id string) (models.CD, error) {
	var cd models.CD
	err := m.cds.FindOne(ctx, bson.M{"_id": id}).Decode(&cd)
	return cd, mapMongoErr(err)
}

func (m *Mongo) CDsByOwner(ctx context.Context, uid string) ([]models.CD, error) {
	cursor, err := m.cds.Find(ctx, bson.M{"user_id": uid, "deleted_at": nil})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var cds []models.CD
	if err := cursor.All(ctx, &cds); err != nil {
		return nil, err
	}
	return cds, nil
}

func (m *Mongo) UpdateCD(ctx context.Context, cd models.CD) error {
	// Owner-editable fields only; the ledger and counters move through
	// their own atomic operations.
	update := bson.M{"$set": bson.M{
		"name":      cd.Name,
		"label":     cd.Label,
		"is_public": cd.IsPublic,
		"public_at": cd.PublicAt,
	}}
	res, err := m.cds.UpdateOne(ctx, bson.M{"_id": cd.ID, "deleted_at": nil}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) AdmitFile(ctx context.Context, cdID string, sizeBytes int64) (models.CD, error) {
	// Headroom check and increment in one conditional update. The $expr
	// filter re-evaluates against the persisted ledger, so two uploads
	// racing on a stale snapshot cannot both slip past the limit.
	filter := bson.M{
		"_id":        cdID,
		"deleted_at": nil,
		"$expr": bson.M{"$lte": bson.A{
			bson.M{"$add": bson.A{"$storage_used_bytes", sizeBytes}},
			"$storage_limit_bytes",
		}},
	}
	update := bson.M{"$inc": bson.M{"storage_used_bytes": sizeBytes, "file_count": 1}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var cd models.CD
	err := m.cds.FindOneAndUpdate(ctx, filter, update, opts).Decode(&cd)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// Distinguish a missing CD from exhausted headroom.
		existing, lookupErr := m.CDByID(ctx, cdID)
		if lookupErr != nil || existing.DeletedAt != nil {
			return models.CD{}, ErrNotFound
		}
		return models.CD{}, &quota.QuotaError{
			Ceiling:    quota.CeilingCD,
			SizeBytes:  existing.StorageUsedBytes + sizeBytes,
			LimitBytes: existing.StorageLimitBytes,
		}
	}
	if err != nil {
		return models.CD{}, err
	}
	return cd, nil
}

func (m *Mongo) ReleaseFile(ctx context.Context, cdID string, sizeBytes int64) error {
	update := bson.M{"$inc": bson.M{"storage_used_bytes": -sizeBytes, "file_count": -1}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var cd models.CD
	err := m.cds.FindOneAndUpdate(ctx, bson.M{"_id": cdID}, update, opts).Decode(&cd)
	if err != nil {
		return mapMongoErr(err)
	}
	if cd.StorageUsedBytes < 0 || cd.FileCount < 0 {
		// Clamp and report; $max raises a field to the given floor only
		// when it is currently below it.
		_, clampErr := m.cds.UpdateOne(ctx, bson.M{"_id": cdID},
			bson.M{"$max": bson.M{"storage_used_bytes": int64(0), "file_count": int64(0)}})
		if clampErr != nil {
			return clampErr
		}
		return quota.ErrNegativeUsage
	}
	return nil
}

func (m *Mongo) MarkDeleted(ctx context.Context, cdID string, at time.Time) error {
	res, err := m.cds.UpdateOne(ctx, bson.M{"_id": cdID},
		bson.M{"$set": bson.M{"deleted_at": at}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) DeletedCDs(ctx context.Context) ([]models.CD, error) {
	cursor, err := m.cds.Find(ctx, bson.M{"deleted_at": bson.M{"$ne": nil}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var cds []models.CD
	if err := cursor.All(ctx, &cds); err != nil {
		return nil, err
	}
	return cds, nil
}

func (m *Mongo) DeleteCD(ctx context.Context, cdID string) error {
	_, err := m.cds.DeleteOne(ctx, bson.M{"_id": cdID})
	return err
}

func (m *Mongo) PublicCDs(ctx context.Context) ([]models.CD, error) {
	opts := options.Find().SetSort(bson.D{{Key: "public_at", Value: -1}})
	cursor, err := m.cds.Find(ctx, bson.M{"is_public": true, "deleted_at": nil}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var cds []models.CD
	if err := cursor.All(ctx, &cds); err != nil {
		return nil, err
	}
	return cds, nil
}

func (m *Mongo) IncrementViews(ctx context.Context, cdID string) error {
	res, err := m.cds.UpdateOne(ctx,
		bson.M{"_id": cdID, "is_public": true, "deleted_at": nil},
		bson.M{"$inc": bson.M{"view_count": 1}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// --- files ---

func (m *Mongo) CreateFile(ctx context.Context, f models.File) error {
	_, err := m.files.InsertOne(ctx, f)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (m *Mongo) FileByID(ctx context.Context, cdID, fileID string) (models.File, error) {
	var f models.File
	err := m.files.FindOne(ctx, bson.M{"_id": fileID, "cd_id": cdID}).Decode(&f)
	return f, mapMongoErr(err)
}

func (m *Mongo) FilesByCD(ctx context.Context, cdID string) ([]models.File, error) {
	cursor, err := m.files.Find(ctx, bson.M{"cd_id": cdID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var files []models.File
	if err := cursor.All(ctx, &files); err != nil {
		return nil, err
	}
	return files, nil
}

func (m *Mongo) DeleteFile(ctx context.Context, cdID, fileID string) error {
	res, err := m.files.DeleteOne(ctx, bson.M{"_id": fileID, "cd_id": cdID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) DeleteFilesByCD(ctx context.Context, cdID string) (int64, error) {
	res, err := m.files.DeleteMany(ctx, bson.M{"cd_id": cdID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// --- share tokens ---

func (m *Mongo) CreateToken(ctx context.Context, t models.ShareToken) error {
	_, err := m.tokens.InsertOne(ctx, t)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (m *Mongo) TokenByID(ctx context.Context, token string) (models.ShareToken, error) {
	var t models.ShareToken
	err := m.tokens.FindOne(ctx, bson.M{"_id": token}).Decode(&t)
	return t, mapMongoErr(err)
}

func (m *Mongo) DeleteToken(ctx context.Context, token string) error {
	res, err := m.tokens.DeleteOne(ctx, bson.M{"_id": token})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) DeleteTokensByCD(ctx context.Context, cdID string) (int64, error) {
	res, err := m.tokens.DeleteMany(ctx, bson.M{"cd_id": cdID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (m *Mongo) IncrementAccess(ctx context.Context, token string) error {
	res, err := m.tokens.UpdateOne(ctx, bson.M{"_id": token},
		bson.M{"$inc": bson.M{"access_count": 1}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// --- email logs ---

func (m *Mongo) CreateEmailLog(ctx context.Context, l models.EmailLog) error {
	_, err := m.emailLogs.InsertOne(ctx, l)
	return err
}

func (m *Mongo) ResolveEmailLog(ctx context.Context, id string, status models.EmailStatus, errMsg string) error {
	set := bson.M{"status": status}
	if errMsg != "" {
		set["error"] = errMsg
	}
	res, err := m.emailLogs.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.EmailPending},
		bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) EmailLogsByUser(ctx context.Context, uid string) ([]models.EmailLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "sent_at", Value: -1}})
	cursor, err := m.emailLogs.Find(ctx, bson.M{"user_id": uid}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var logs []models.EmailLog
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

func mapMongoErr(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}
