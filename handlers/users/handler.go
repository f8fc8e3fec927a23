package users

import (
	"net/http"
	"time"

	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/db"
	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/models"
	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/payments"
	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/utils"

	"github.com/gin-gonic/gin"
)

// GetUserProfile returns the connected user's profile with the entitlement flag
// @Summary Get the user profile
// @Description Return the profile of the connected user, including onboarding fields and the premium flag
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "user + premium flag"
// @Failure 401 {object} map[string]string "error: Unauthorized"
// @Failure 404 {object} map[string]string "error: User not found"
// @Router /users/profile [get]
func GetUserProfile(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		utils.LogError(nil, "User not authenticated dans GetUserProfile")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var user models.User
	if err := db.DB.First(&user, "id = ?", userID).Error; err != nil {
		utils.LogErrorWithUser(userID, err, "User not found dans GetUserProfile")
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	sub, err := payments.FindEntitlement(user.ID)
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Erreur de lecture de l'abonnement dans GetUserProfile")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error fetching subscription"})
		return
	}

	user.Password = ""
	c.JSON(http.StatusOK, gin.H{
		"user":    user,
		"premium": payments.IsEntitled(sub, user.PremiumOverride, time.Now()),
	})
}

// UpdateOnboarding saves the quit-smoking profile collected at onboarding
// @Summary Update onboarding information
// @Description Save the quit date, cigarettes per day and pack price of the connected user
// @Tags users
// @Accept json
// @Produce json
// @Param body body models.OnboardingUpdate true "Onboarding information"
// @Security BearerAuth
// @Success 200 {object} map[string]string "message: Profile updated"
// @Failure 400 {object} map[string]string "error: Invalid input"
// @Failure 401 {object} map[string]string "error: Unauthorized"
// @Router /users/onboarding [put]
func UpdateOnboarding(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		utils.LogError(nil, "User not authenticated dans UpdateOnboarding")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var input models.OnboardingUpdate
	if !utils.ValidateRequestBody(c, &input) {
		return
	}

	if input.CigarettesPerDay < 0 || input.PackPrice < 0 {
		utils.SendError(c, http.StatusBadRequest, "Values cannot be negative")
		return
	}

	err := db.DB.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"quit_date":          input.QuitDate,
		"cigarettes_per_day": input.CigarettesPerDay,
		"pack_price":         input.PackPrice,
	}).Error
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Erreur lors de la mise à jour du profil dans UpdateOnboarding")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error updating profile"})
		return
	}

	utils.LogSuccessWithUser(userID, "Profil mis à jour avec succès dans UpdateOnboarding")
	c.JSON(http.StatusOK, gin.H{"message": "Profile updated"})
}
