package main

import (
	"log"

	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/db"
	_ "github.com/Gulzhigitov-Baiaman/nosmoking-sub000/docs"
	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/routes"

	"github.com/gin-gonic/gin"
)

// @title API NoSmoking Backend
// @version 1.0
// @description API d'abonnement Premium pour l'application NoSmoking
// @host localhost:8080
// @BasePath /
// @SecurityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Entrez le JWT avec le préfixe Bearer: Bearer <JWT>
func main() {

	gin.SetMode(gin.ReleaseMode)

	// Initialiser la base de données
	db.InitDB()

	r := routes.SetupRouter()

	if err := r.Run(":8080"); err != nil {
		log.Fatal("Erreur lors du démarrage du serveur:", err)
	}
}
