package issuer

import (
	"net/http"

	"github.com/dmitrijs2005/remotestorage/internal/common"
	"github.com/dmitrijs2005/remotestorage/internal/server/auth"
	"github.com/gin-gonic/gin"
)

const subjectKey = "subject"

// AuthMiddleware rejects requests without a valid Bearer session token and
// stores the token subject in the gin context.
func AuthMiddleware(secretKey []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.BearerToken(c.GetHeader(common.AuthorizationHeaderName))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header missing or invalid"})
			return
		}

		subject, err := auth.SubjectFromToken(token, secretKey)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(subjectKey, subject)
		c.Next()
	}
}

// Routes mounts the credential API:
//
//	GET /api/credentials/:kind   files or media upload credentials
//	GET /api/media/sign?file=... media URL signature
func (i *Issuer) Routes(r gin.IRouter) {
	api := r.Group("/api", AuthMiddleware([]byte(i.config.SecretKey)))
	api.GET("/credentials/:kind", func(c *gin.Context) {
		c.JSON(i.Issue(c.Request.Context(), c.GetString(subjectKey), c.Param("kind"), firstValues(c)))
	})
	api.GET("/media/sign", func(c *gin.Context) {
		c.JSON(i.Issue(c.Request.Context(), c.GetString(subjectKey), KindSign, firstValues(c)))
	})
}

func firstValues(c *gin.Context) map[string]string {
	q := c.Request.URL.Query()
	out := make(map[string]string, len(q))
	for k, v := range q {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// NewAPIHandler builds the gin engine serving the credential API.
func NewAPIHandler(i *Issuer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	i.Routes(r)
	return r
}
