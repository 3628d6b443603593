package tests

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clonecademy/clonecademy/client"
	"github.com/clonecademy/clonecademy/core"
	"github.com/clonecademy/clonecademy/core/course"
	"github.com/clonecademy/clonecademy/tests"
)

// Test_client drives the API through the client package over a real listener.
func Test_client(t *testing.T) {
	f := newCourseFixture(t)
	ts := httptest.NewServer(f.Server)
	defer ts.Close()

	srv, err := client.NewServer(core.ClientConfig{BaseURL: ts.URL + "/api", Timeout: 5 * time.Second}, nil)
	require.NoError(t, err)
	ctx := context.Background()
	courseID := client.CourseID(strconv.FormatInt(f.visible.ID, 10))

	view := client.NewCourseView(srv, nil)
	err = view.Load(ctx, courseID)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, client.StatusCode(err))

	require.NoError(t, srv.Login(ctx, "learner", testPwd))

	require.NoError(t, view.Load(ctx, courseID))
	st := view.State()
	require.NotNil(t, st.Course)
	assert.Equal(t, "Genetics", st.Course.Name)
	assert.Len(t, st.Course.Modules, 2)
	assert.Equal(t, client.Incomplete, st.Completion)

	err = view.Load(ctx, client.CourseID(strconv.FormatInt(f.hidden.ID, 10)))
	assert.Equal(t, http.StatusNotFound, client.StatusCode(err))
	assert.Equal(t, client.Unknown, view.State().Completion)

	for mi, m := range f.visible.Modules {
		for qi, q := range m.Questions {
			var res course.AnswerResult
			path := fmt.Sprintf("courses/%d/%d/%d", f.visible.ID, mi+1, qi+1)
			require.NoError(t, srv.Post(ctx, path, course.AnswerRequest{Answers: testutil.CorrectAnswers(q)}, &res))
			assert.True(t, res.Solved)
		}
	}

	require.NoError(t, view.Load(ctx, courseID))
	assert.Equal(t, client.Completed, view.State().Completion)

	form := client.NewModRequestForm(srv)
	require.NoError(t, form.Check(ctx))
	assert.True(t, form.State().Available)
	require.NoError(t, form.Send(ctx, "I teach genetics"))
	assert.Equal(t, map[string]string{"Request": "ok"}, form.State().Answer)

	form = client.NewModRequestForm(srv)
	require.NoError(t, form.Check(ctx))
	assert.False(t, form.State().Available)
}
