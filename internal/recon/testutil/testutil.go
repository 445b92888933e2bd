package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/KieuLinh0701/Logistics-System-sub003/internal/middleware"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/entity"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	TestSchema = "test_recon"
	JWTSecret  = "recon-test-jwt-secret"
)

// TestEnv holds test environment resources
type TestEnv struct {
	DB     *gorm.DB
	Router *gin.Engine
	T      *testing.T
}

// projectRoot returns the project root directory by looking for go.mod
func projectRoot() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func loadEnv() {
	if root := projectRoot(); root != "" {
		godotenv.Load(filepath.Join(root, ".env"))
	}
}

// SetupTestDB opens an isolated schema for one test and drops it afterwards.
// The test is skipped when no PostgreSQL server is reachable.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	loadEnv()

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "recon")
	password := getEnv("DB_PASSWORD", "recon123")
	dbname := getEnv("DB_NAME", "recon")

	baseDSN := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable connect_timeout=3",
		host, port, user, password, dbname)

	schemaName := fmt.Sprintf("%s_%d", TestSchema, time.Now().UnixNano()%1000000000)

	setupDB, err := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	if err := setupDB.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schemaName)).Error; err != nil {
		t.Skipf("cannot create test schema: %v", err)
	}
	sqlSetup, _ := setupDB.DB()
	sqlSetup.Close()

	// search_path in the DSN so every pooled connection uses the test schema
	testDSN := fmt.Sprintf("%s search_path=%s", baseDSN, schemaName)
	db, err := gorm.Open(postgres.Open(testDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := db.AutoMigrate(entity.All()...); err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		cleanDB, cleanErr := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if cleanErr == nil {
			cleanDB.Exec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName))
			if sqlClean, _ := cleanDB.DB(); sqlClean != nil {
				sqlClean.Close()
			}
		}
	})

	return db
}

// SetupRouter creates a gin test router
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// AuthGroup creates an API group with JWT auth middleware for testing
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret))
}

// GenerateTestToken creates a valid JWT token for testing
func GenerateTestToken(userID, name, email string, roles, permissions []string) string {
	if roles == nil {
		roles = []string{}
	}
	if permissions == nil {
		permissions = []string{}
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID,
		"uid":   userID,
		"name":  name,
		"email": email,
		"roles": roles,
		"perms": permissions,
		"iss":   "logistics-identity",
		"iat":   now.Unix(),
		"exp":   now.Add(24 * time.Hour).Unix(),
		"jti":   fmt.Sprintf("test-jti-%d", now.UnixNano()),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(JWTSecret))
	return tokenString
}

// DefaultTestToken returns a token for a manager with every permission
func DefaultTestToken() string {
	return GenerateTestToken(
		"manager-001",
		"Test Manager",
		"manager@test.com",
		[]string{middleware.AdminRole},
		[]string{"*"},
	)
}

// DoRequest executes an HTTP request against the test router
func DoRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse parses the JSON envelope
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// SeedSubmission inserts a submission directly
func SeedSubmission(t *testing.T, db *gorm.DB, orderID, shipperID uint64, system, actual int64, status string, batchID *uint64) *entity.PaymentSubmission {
	t.Helper()
	s := &entity.PaymentSubmission{
		Code:         fmt.Sprintf("PS-TEST-%04d", orderID),
		OrderID:      orderID,
		ShipperID:    shipperID,
		BatchID:      batchID,
		SystemAmount: decimal.NewFromInt(system),
		ActualAmount: decimal.NewFromInt(actual),
		Status:       status,
		PaidAt:       time.Now(),
		Version:      1,
	}
	if err := db.Create(s).Error; err != nil {
		t.Fatalf("Failed to seed submission: %v", err)
	}
	s.Mismatched = s.IsMismatched()
	return s
}

// SeedBatch inserts an empty batch directly
func SeedBatch(t *testing.T, db *gorm.DB, code string, shipperID uint64, status string) *entity.PaymentSubmissionBatch {
	t.Helper()
	b := &entity.PaymentSubmissionBatch{
		Code:              code,
		ShipperID:         shipperID,
		DeclaredAmount:    decimal.Zero,
		TotalSystemAmount: decimal.Zero,
		TotalActualAmount: decimal.Zero,
		Status:            status,
		CreatedBy:         "manager-001",
		Version:           1,
	}
	if err := db.Omit("Submissions").Create(b).Error; err != nil {
		t.Fatalf("Failed to seed batch: %v", err)
	}
	return b
}

// SeedSettlement inserts a settlement batch directly
func SeedSettlement(t *testing.T, db *gorm.DB, code string, shopID uint64, balance, remain int64, status string) *entity.SettlementBatch {
	t.Helper()
	b := &entity.SettlementBatch{
		Code:          code,
		ShopID:        shopID,
		BalanceAmount: decimal.NewFromInt(balance),
		RemainAmount:  decimal.NewFromInt(remain),
		Status:        status,
		Version:       1,
	}
	if err := db.Omit("Payments").Create(b).Error; err != nil {
		t.Fatalf("Failed to seed settlement: %v", err)
	}
	return b
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
