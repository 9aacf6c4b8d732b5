package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func NewApi(router *gin.Engine, posts *PostHandler) {
	router.GET("/healthz", Health)

	postsApi := router.Group("/api/posts")
	{
		postsApi.POST("", posts.CreatePost)
		postsApi.GET("/search", posts.SearchByKeyword)
		postsApi.GET("/tags", posts.SearchByTags)
		postsApi.GET("/recent", posts.GetRecentPosts)
		postsApi.GET("/:id", posts.GetPost)
		postsApi.PUT("/:id", posts.UpdatePost)
		postsApi.PATCH("/:id/visibility", posts.SetVisibility)
	}
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
