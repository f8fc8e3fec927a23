package unlock

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/db"
	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/models"
	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Durée de validité par défaut d'un code promotionnel
const defaultCodeValidity = 30 * 24 * time.Hour

type redeemInput struct {
	Code string `json:"code"`
}

type generateInput struct {
	ExpiresInDays int `json:"expiresInDays"`
}

// hashCode : hachage déterministe pour la recherche par valeur. Les codes
// sont générés aléatoirement, un hachage salé n'apporterait rien ici.
func hashCode(code string) string {
	sum := sha256.Sum256([]byte(strings.ToUpper(strings.TrimSpace(code))))
	return hex.EncodeToString(sum[:])
}

// GenerateCode crée un code de déblocage à usage unique. Le code en clair
// n'est renvoyé qu'une seule fois, seul son hachage est stocké.
// @Summary Generate a single-use unlock code
// @Description Create an expiring, single-use premium unlock code. Admin only. The plaintext code is returned once and never stored.
// @Tags unlock
// @Accept json
// @Produce json
// @Param body body generateInput false "Validity in days (default 30)"
// @Security BearerAuth
// @Success 201 {object} map[string]interface{} "code, expiresAt"
// @Failure 401 {object} map[string]string "error: Unauthorized"
// @Failure 403 {object} map[string]string "error: admin role required"
// @Router /unlock-codes [post]
func GenerateCode(c *gin.Context) {
	userID, _ := c.Get("user_id")

	var input generateInput
	_ = c.ShouldBindJSON(&input)

	validity := defaultCodeValidity
	if input.ExpiresInDays > 0 {
		validity = time.Duration(input.ExpiresInDays) * 24 * time.Hour
	}

	raw := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	code := "NS-" + raw[:8]
	expiresAt := time.Now().Add(validity)

	unlockCode := models.UnlockCode{
		CodeHash:  hashCode(code),
		ExpiresAt: expiresAt,
	}
	if err := db.DB.Create(&unlockCode).Error; err != nil {
		utils.LogErrorWithUser(userID, err, "Erreur création du code dans GenerateCode")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error creating unlock code"})
		return
	}

	utils.LogSuccessWithUser(userID, "Code de déblocage généré dans GenerateCode")
	c.JSON(http.StatusCreated, gin.H{"code": code, "expiresAt": expiresAt})
}

// RedeemCode valide un code côté serveur et active l'override premium de
// l'utilisateur. Remplace l'ancien secret embarqué dans le client : le
// serveur est seul juge, le code est à usage unique et expirable.
// @Summary Redeem an unlock code
// @Description Validate a single-use unlock code server-side and grant the premium override to the authenticated user.
// @Tags unlock
// @Accept json
// @Produce json
// @Param body body redeemInput true "Unlock code"
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "success, message"
// @Failure 400 {object} map[string]string "error: invalid or expired code"
// @Failure 401 {object} map[string]string "error: Unauthorized"
// @Router /redeem-code [post]
func RedeemCode(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var input redeemInput
	if err := c.ShouldBindJSON(&input); err != nil || input.Code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}

	var user models.User
	if err := db.DB.First(&user, "id = ?", userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	now := time.Now()

	// Mise à jour conditionnelle : deux rachats concurrents du même code ne
	// peuvent pas réussir tous les deux
	result := db.DB.Model(&models.UnlockCode{}).
		Where("code_hash = ? AND redeemed_by IS NULL AND expires_at > ?", hashCode(input.Code), now).
		Updates(map[string]interface{}{
			"redeemed_by": user.ID,
			"redeemed_at": now,
		})
	if result.Error != nil {
		utils.LogErrorWithUser(userID, result.Error, "Erreur lors du rachat du code dans RedeemCode")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error redeeming code"})
		return
	}
	if result.RowsAffected == 0 {
		utils.LogErrorWithUser(userID, nil, "Code invalide, expiré ou déjà utilisé dans RedeemCode")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired code"})
		return
	}

	if err := db.DB.Model(&user).Update("premium_override", true).Error; err != nil {
		utils.LogErrorWithUser(userID, err, "Code racheté mais override non activé dans RedeemCode")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error activating premium"})
		return
	}

	utils.LogSuccessWithUser(userID, "Code de déblocage racheté avec succès dans RedeemCode")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Premium unlocked"})
}
